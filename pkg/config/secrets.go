package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var secretsFileNames = []string{"secrets.yaml", "secrets.yml", "secrets.json"}

// LoadWithSecrets behaves like Load and additionally merges a secrets file
// between the config file and the environment. The second result carries only
// the values taken from the secrets file, for use with Config.Redacted.
//
// The secrets file is, in order: the path in <PREFIX>_SECRETS_FILE, a
// secrets.<ext> beside the config file, or secrets.yaml in the working directory.
// Only the explicit variable makes a missing file an error.
//
//	# secrets.yaml
//	directory:
//	  etcd:
//	    password: s3cret
//	admin_client:
//	  token: admin-token
func (l *ViperLoader) LoadWithSecrets() (*Config, *Config, error) {
	return l.load(true)
}

func (l *ViperLoader) mergeSecrets(v *viper.Viper) (*Config, error) {
	path, err := l.secretsFile()
	if err != nil || path == "" {
		return nil, err
	}

	sv := viper.New()
	sv.SetConfigFile(path)
	if err := sv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}
	var secrets Config
	if err := sv.Unmarshal(&secrets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secrets file %s: %w", path, err)
	}
	if err := v.MergeConfigMap(sv.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to merge secrets file %s: %w", path, err)
	}
	return &secrets, nil
}

func (l *ViperLoader) secretsFile() (string, error) {
	envName := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(envName); ok {
		path := strings.TrimSpace(raw)
		if path == "" {
			return "", fmt.Errorf("%s is set but empty", envName)
		}
		if err := regularFile(path); err != nil {
			return "", fmt.Errorf("%s: %w", envName, err)
		}
		return path, nil
	}

	var candidates []string
	if l.configFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile)))
	}
	candidates = append(candidates, secretsFileNames...)
	for _, path := range candidates {
		if regularFile(path) == nil {
			return path, nil
		}
	}
	return "", nil
}

func regularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("secrets file %s is not accessible: %w", path, err)
	}
	if info.IsDir() {
		return errors.New("secrets file " + path + " is a directory")
	}
	return nil
}
