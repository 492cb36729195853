// Command toolhost serves an application's tools over HTTP, a unary RPC
// socket and MCP, and generates the matching interface definition.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/toolhost/internal/apps"
	"github.com/bobmcallan/toolhost/internal/common"
	"github.com/bobmcallan/toolhost/internal/config"
)

var (
	configFiles []string
	appName     string
	logLevel    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolhost",
		Short:         "Serve application tools over HTTP, RPC and MCP",
		Long:          "toolhost exposes an application's registered tools through a shared dispatch table and generates a proto3 interface definition for them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.StringArrayVarP(&configFiles, "config", "c", nil, "configuration file path (repeatable; .toml, .yaml or .json)")
	flags.StringVar(&appName, "app", "", fmt.Sprintf("application to serve (%s)", strings.Join(apps.Names(), ", ")))
	flags.StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// errInvalidConfig is returned after the issues have been printed.
var errInvalidConfig = errors.New("invalid configuration")

// loadConfig applies defaults, files, environment and flags in that order.
func loadConfig(overrides config.Overrides) (*config.Config, error) {
	files := configFiles
	if len(files) == 0 {
		for _, path := range configSearchPaths() {
			if _, err := os.Stat(path); err == nil {
				files = append(files, path)
				break
			}
		}
	}

	cfg, err := config.LoadFromFiles(files...)
	if err != nil {
		return nil, err
	}

	overrides.App = appName
	config.ApplyFlagOverrides(cfg, overrides)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if issues := cfg.Validate(); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Configuration error: fields are missing or invalid:")
		fmt.Fprintln(os.Stderr, "")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  - %s\n", issue)
		}
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Values can be set via config file, TOOLHOST_* environment variables, or CLI flags.")
		fmt.Fprintln(os.Stderr, "")
		return nil, errInvalidConfig
	}
	return cfg, nil
}

// configSearchPaths returns config files to auto-discover (first match wins).
// Binary-relative paths are tried before the working directory.
func configSearchPaths() []string {
	candidates := []string{
		"toolhost.toml",
		"toolhost.yaml",
		"toolhost.json",
		filepath.Join("config", "toolhost.toml"),
	}

	exe, err := os.Executable()
	if err != nil {
		return candidates
	}
	binDir := filepath.Dir(exe)

	paths := []string{
		filepath.Join(binDir, "toolhost.toml"),
		filepath.Join(binDir, "config", "toolhost.toml"),
	}
	paths = append(paths, candidates...)

	seen := make(map[string]bool, len(paths))
	deduped := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		deduped = append(deduped, p)
	}
	return deduped
}

// setupLogger creates an arbor logger based on config.
func setupLogger(cfg *config.Config) *common.Logger {
	return common.NewLoggerFromConfig(cfg.Logging)
}
