// Package cli builds the mountsync command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimburion/mountsync/pkg/config"
	"github.com/nimburion/mountsync/pkg/observability/logger"
	"github.com/nimburion/mountsync/pkg/refresher"
	"github.com/nimburion/mountsync/pkg/version"
)

// Options configures the root command.
type Options struct {
	Name       string
	ConfigPath string
	EnvPrefix  string
}

type globalFlags struct {
	configPath     string
	secretFilePath string
	logLevel       string
}

// NewRootCommand creates the CLI with serve, refresh, config, and version subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = "mountsync"
	}
	if strings.TrimSpace(opts.EnvPrefix) == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         "Keeps router mount table caches in sync across a federation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&flags.secretFilePath, "secret-file", "", fmt.Sprintf("path to secrets file (sets %s_SECRETS_FILE)", opts.EnvPrefix))
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCommand(opts, flags),
		newRefreshCommand(opts, flags),
		newConfigCommand(opts, flags),
		newVersionCommand(opts),
	)
	return rootCmd
}

func newServeCommand(opts Options, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run periodic refresh cycles and the management server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closeLog, err := loadConfigAndLogger(opts, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := newApp(cmd.Context(), cfg, log, appOptions{management: cfg.Management.Enabled, schedule: true})
			if err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}
}

func newRefreshCommand(opts Options, flags *globalFlags) *cobra.Command {
	var (
		strict bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run a single refresh cycle against every listed router",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, log, closeLog, err := loadConfigAndLogger(opts, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := newApp(cmd.Context(), cfg, log, appOptions{})
			if err != nil {
				return err
			}
			result, err := a.refreshOnce(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), format, result, formatResult); err != nil {
				return err
			}
			if strict {
				return result.Err()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any router failed to refresh")
	cmd.Flags().StringVarP(&output, "output", "o", string(outputText), "output format (text, json, yaml)")
	return cmd
}

func newConfigCommand(opts Options, flags *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := loadConfig(opts, flags); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, secrets, err := loadConfig(opts, flags)
			if err != nil {
				return err
			}
			if showSecrets {
				fmt.Fprint(cmd.OutOrStdout(), cfg.String())
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.Redacted(secrets))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	return configCmd
}

func newVersionCommand(opts Options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, version.Current(opts.Name), formatVersion)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(outputText), "output format (text, json, yaml)")
	return cmd
}

func loadConfig(opts Options, flags *globalFlags) (*config.Config, *config.Config, error) {
	if err := applySecretFileFlag(opts.EnvPrefix, flags.secretFilePath); err != nil {
		return nil, nil, err
	}
	cfg, secrets, err := config.NewViperLoader(flags.configPath, opts.EnvPrefix).LoadWithSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, secrets, nil
}

// loadConfigAndLogger loads configuration and builds the process logger. The
// returned func flushes and closes the logger.
func loadConfigAndLogger(opts Options, flags *globalFlags, out io.Writer) (*config.Config, logger.Logger, func(), error) {
	cfg, _, err := loadConfig(opts, flags)
	if err != nil {
		return nil, nil, nil, err
	}

	level := cfg.Observability.LogLevel
	if strings.TrimSpace(flags.logLevel) != "" {
		level = flags.logLevel
	}
	parsedLevel, err := logger.ParseLogLevel(level)
	if err != nil {
		return nil, nil, nil, err
	}
	parsedFormat, err := logger.ParseLogFormat(cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, nil, err
	}

	zapLog, err := logger.NewZapLogger(logger.Config{
		Level:  parsedLevel,
		Format: parsedFormat,
		Output: out,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}

	log := logger.WrapAsync(zapLog, logger.AsyncConfig{
		Enabled:      cfg.Observability.AsyncLogging.Enabled,
		QueueSize:    cfg.Observability.AsyncLogging.QueueSize,
		DropWhenFull: cfg.Observability.AsyncLogging.DropWhenFull,
	}).With("service", cfg.Service.Name, "environment", cfg.Service.Environment)

	closeLog := func() {
		if async, ok := log.(*logger.AsyncLogger); ok {
			async.Close()
		}
		_ = zapLog.Sync()
	}
	return cfg, log, closeLog, nil
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(strings.ToUpper(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

// exitCode maps a command error to a process exit status: 2 for routers that
// did not refresh, 1 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, refresher.ErrNodeFailure),
		errors.Is(err, refresher.ErrBatchTimeout),
		errors.Is(err, refresher.ErrInterruptedWait):
		return 2
	default:
		return 1
	}
}

// Execute runs the root command and returns the process exit status.
func Execute(cmd *cobra.Command) int {
	return exitCode(cmd.Execute())
}
