package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/kpfed/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3030"

var (
	apiClient *client.Client
	flagURL   string
	flagFmt   string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("kpfed version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("kpfed version %s-dev", version)
}

type configFile struct {
	Profiles      map[string]configProfile `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

type configProfile struct {
	URL string `yaml:"url"`
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "kpfed",
		Short:   "kpfed CLI: expand query graphs across knowledge providers",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()
			apiClient = client.New(flagURL)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "kpfed server URL (env: KPFED_URL)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")

	initCmd := newInitCmd()
	initCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup
	synCmd := newSynonymsCmd()
	synCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // talks to postgres, not the server

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(synCmd)
	rootCmd.AddCommand(newExpandCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newTraceCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kpfed", "config.yaml"), nil
}

// resolveConfig applies flag, then env, then config file precedence to the server URL.
func resolveConfig() {
	if flagURL != defaultURL {
		return
	}
	if v := os.Getenv("KPFED_URL"); v != "" {
		flagURL = v
		return
	}

	cfgPath, err := configPath()
	if err != nil {
		return
	}
	data, err := os.ReadFile(cfgPath) //nolint:gosec // path is under the user's home
	if err != nil {
		return
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return
	}
	profileName := cfg.ActiveProfile
	if profileName == "" {
		profileName = "default"
	}
	if p, ok := cfg.Profiles[profileName]; ok && p.URL != "" {
		flagURL = p.URL
	}
}
