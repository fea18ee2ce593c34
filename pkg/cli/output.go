package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nimburion/mountsync/pkg/refresher"
	"github.com/nimburion/mountsync/pkg/version"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutputFormat(raw string) (outputFormat, error) {
	switch format := outputFormat(strings.ToLower(strings.TrimSpace(raw))); format {
	case outputText, outputJSON, outputYAML:
		return format, nil
	case "":
		return outputText, nil
	default:
		return "", fmt.Errorf("invalid output format %q (must be text, json or yaml)", raw)
	}
}

func writeOutput[T any](w io.Writer, format outputFormat, value T, text func(T) string) error {
	switch format {
	case outputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case outputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		return encoder.Close()
	default:
		_, err := io.WriteString(w, text(value))
		return err
	}
}

func formatResult(result refresher.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cycle:    %s\n", result.CycleID)
	fmt.Fprintf(&sb, "Success:  %d\n", result.Success)
	fmt.Fprintf(&sb, "Failure:  %d\n", result.Failure)
	fmt.Fprintf(&sb, "Skipped:  %d\n", result.Skipped)
	fmt.Fprintf(&sb, "Duration: %s\n", result.Duration)
	if result.TimedOut {
		sb.WriteString("Timed out waiting for routers\n")
	}
	if result.Interrupted {
		sb.WriteString("Interrupted while waiting for routers\n")
	}
	for _, address := range result.Failed {
		fmt.Fprintf(&sb, "  failed: %s\n", address)
	}
	return sb.String()
}

func formatVersion(info version.Info) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Service:    %s\n", info.Service)
	fmt.Fprintf(&sb, "Version:    %s\n", info.Version)
	fmt.Fprintf(&sb, "Commit:     %s\n", info.Commit)
	fmt.Fprintf(&sb, "Build Time: %s\n", info.BuildTime)
	fmt.Fprintf(&sb, "Go:         %s\n", info.GoVersion)
	return sb.String()
}
