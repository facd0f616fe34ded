package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/kpfed/client"
)

func newInitCmd() *cobra.Command {
	var initURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up kpfed CLI configuration",
		Long:  "Interactive setup that creates ~/.kpfed/config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), initURL, initURL != "")
		},
	}

	cmd.Flags().StringVar(&initURL, "server", "", "Server URL (non-interactive mode)")
	return cmd
}

func runInit(in io.Reader, out io.Writer, url string, nonInteractive bool) error {
	if !nonInteractive {
		fmt.Fprintln(out, "\n  kpfed setup")
		fmt.Fprintln(out)

		fmt.Fprintf(out, "  Server URL [%s]: ", defaultURL)
		line, _ := bufio.NewReader(in).ReadString('\n')
		url = strings.TrimSpace(line)
	}

	if url == "" {
		url = defaultURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := client.New(url).Health(ctx)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	cfgPath, err := writeConfig(url)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(out, "Connected to kpfed v%s (%d providers)\n", h.Version, h.Providers)
	fmt.Fprintf(out, "Config saved to %s\n", cfgPath)
	return nil
}

func writeConfig(url string) (string, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(configFile{
		Profiles:      map[string]configProfile{"default": {URL: url}},
		ActiveProfile: "default",
	})
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}

	return cfgPath, nil
}
