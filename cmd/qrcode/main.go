// File: cmd/qrcode/main.go
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartdevs17/qrcode-generator/internal/config"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// newRootCmd builds the command tree
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "qrcode",
		Short:         "QR code generator and scanner",
		Long:          `Generate QR codes, decode them from images and keep a searchable history of both.`,
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newScanCmd(),
		newWatchCmd(),
		newHistoryCmd(),
		newSettingsCmd(),
		newVersionCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// loadConfig reads and validates configuration for cmd
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withApplication runs fn against a fully initialized application
func withApplication(cmd *cobra.Command, fn func(app *Application) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Stop()

	return fn(app)
}

// newServeCmd runs the HTTP API until interrupted
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *Application) error {
				if err := app.Serve(); err != nil {
					return err
				}

				signalChan := make(chan os.Signal, 1)
				signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(signalChan)

				select {
				case <-signalChan:
					fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived shutdown signal, stopping...")
				case <-cmd.Context().Done():
				}
				return nil
			})
		},
	}
}

// newVersionCmd prints the version
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qrcode %s\n", AppVersion)
		},
	}
}

// newConfigCmd groups configuration helpers
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration is valid!\n")
			fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
			fmt.Fprintf(out, "Database: %s\n", cfg.Storage.Type)
			fmt.Fprintf(out, "Cache: %s\n", cfg.Cache.Type)
			fmt.Fprintf(out, "Webhooks: %d\n", len(cfg.Notifications.Webhooks))
			return nil
		},
	})

	return configCmd
}

// main is the entry point
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
