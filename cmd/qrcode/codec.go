// File: cmd/qrcode/codec.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/scanner"
	"github.com/smartdevs17/qrcode-generator/internal/viewstate"
)

// copyToClipboard copies content when auto-copy is on; failures only warn
func copyToClipboard(cmd *cobra.Command, app *Application, content string) {
	if !app.settings.AutoCopy.Get() {
		return
	}
	if err := clipboard.WriteAll(content); err != nil {
		app.logger.WithError(err).Warn("Failed to copy to clipboard")
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: could not copy to clipboard")
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard")
}

// defaultOutputPath names a generated image after the current time
func defaultOutputPath(dir string, now time.Time) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("qr_code_%d.png", now.UnixMilli()))
}

// newGenerateCmd renders text to a PNG file and records it
func newGenerateCmd() *cobra.Command {
	var (
		output string
		size   int
		noSave bool
	)

	cmd := &cobra.Command{
		Use:   "generate <text or url>",
		Short: "Generate a QR code image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *Application) error {
				model := viewstate.NewGenerateModel(app.repository, app.renderer, app.metricsManager)
				model.UpdateInputText(strings.Join(args, " "))

				record, err := model.GenerateWith(cmd.Context(), viewstate.GenerateOptions{Size: size, Save: !noSave})
				if record == nil {
					return errors.New(model.Error.Get())
				}

				path := output
				if path == "" {
					path = defaultOutputPath(app.config.QR.OutputDir, time.Now())
				}
				if dir := filepath.Dir(path); dir != "." {
					if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
						return fmt.Errorf("failed to create output directory: %w", mkErr)
					}
				}
				if writeErr := os.WriteFile(path, model.Image.Get(), 0o644); writeErr != nil {
					return fmt.Errorf("failed to write image: %w", writeErr)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Saved %s (%s)\n", path, record.Type)
				if record.ID != 0 {
					fmt.Fprintf(out, "History entry #%d\n", record.ID)
				}
				copyToClipboard(cmd, app, record.Content)

				if err != nil {
					return errors.New(model.Error.Get())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output PNG path (default qr_code_<millis>.png in qr.output_dir)")
	cmd.Flags().IntVarP(&size, "size", "s", 0, "image size in pixels (default qr.size)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the code in the history")

	return cmd
}

// newScanCmd decodes image files and records what they contain
func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <image>...",
		Short: "Decode QR codes from image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *Application) error {
				out := cmd.OutOrStdout()
				failed := 0

				for _, path := range args {
					record, err := scanFile(cmd.Context(), app, path)
					if err != nil {
						failed++
						fmt.Fprintf(out, "%s: %s\n", path, err)
						continue
					}
					fmt.Fprintf(out, "%s: [%s] %s\n", path, record.Type, record.Content)
					copyToClipboard(cmd, app, record.Content)
				}

				if failed == len(args) {
					return fmt.Errorf("no QR code decoded from %d file(s)", failed)
				}
				return nil
			})
		},
	}
}

func scanFile(ctx context.Context, app *Application, path string) (*models.QRCode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	model := viewstate.NewScanModel(app.repository, scanner.SourceFile, app.metricsManager)
	model.StartScanning()

	content, err := app.decoder.DecodeBytes(data)
	if err != nil {
		model.OnScanFailed(err.Error())
		return nil, errors.New(model.Error.Get())
	}

	record, err := model.OnQRCodeScanned(ctx, content)
	if err != nil {
		return nil, errors.New(model.Error.Get())
	}
	return record, nil
}

// newWatchCmd decodes images as they are written into a directory
func newWatchCmd() *cobra.Command {
	var continuous bool

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a directory and decode images dropped into it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *Application) error {
				dir := app.config.Scanner.WatchDir
				if len(args) == 1 {
					dir = args[0]
				}
				if dir == "" {
					return errors.New("no directory given and scanner.watch_dir is not set")
				}
				if !cmd.Flags().Changed("continuous") {
					continuous = app.config.Scanner.Continuous
				}

				ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer cancel()

				return runWatch(ctx, cmd, app, dir, continuous, cancel)
			})
		},
	}

	cmd.Flags().BoolVar(&continuous, "continuous", false, "keep scanning after the first code")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, app *Application, dir string, continuous bool, stop context.CancelFunc) error {
	out := cmd.OutOrStdout()
	model := viewstate.NewScanModel(app.repository, scanner.SourceWatch, app.metricsManager)
	model.StartScanning()

	handler := func(result scanner.Result) {
		if result.Error != "" {
			model.OnScanFailed(result.Error)
			fmt.Fprintf(out, "%s: %s\n", filepath.Base(result.Path), model.Error.Get())
			return
		}

		record, err := model.OnQRCodeScanned(ctx, result.Content)
		if record == nil {
			return
		}
		if err != nil {
			fmt.Fprintln(out, model.Error.Get())
		} else {
			fmt.Fprintf(out, "%s: [%s] %s\n", filepath.Base(result.Path), record.Type, record.Content)
			copyToClipboard(cmd, app, record.Content)
		}

		if continuous {
			model.StartScanning()
			return
		}
		stop()
	}

	analyzer := scanner.NewAnalyzer(scanner.DecoderFunc(app.decoder), handler, app.config.Scanner.AnalyzeTimeout, app.metricsManager)
	if err := analyzer.Start(ctx); err != nil {
		return err
	}
	defer analyzer.Stop()

	watcher, err := scanner.NewDirectoryWatcher(dir, app.config.Scanner.Extensions, analyzer)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", dir)
	if _, err := watcher.ScanExisting(); err != nil {
		app.logger.WithError(err).Warn("Failed to scan existing files")
	}

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
