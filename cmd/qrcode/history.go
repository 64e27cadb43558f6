// File: cmd/qrcode/history.go
package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

const maxListContent = 60

// newHistoryCmd groups the history commands
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage the QR code history",
	}

	historyCmd.AddCommand(
		newHistoryListCmd(),
		newHistoryDeleteCmd(),
		newHistoryClearCmd(),
		newHistoryCountCmd(),
		newHistoryExportCmd(),
	)
	return historyCmd
}

// historyFilter turns list flags into a query; one predicate applies, search first
func historyFilter(source, search, since string, limit int, now time.Time) (models.QRCodeFilter, error) {
	var filter models.QRCodeFilter

	switch {
	case strings.TrimSpace(search) != "":
		filter.Query = search
	case since != "":
		t, err := parseSince(since, now)
		if err != nil {
			return filter, err
		}
		filter.Since = &t
	case source != "":
		switch source {
		case models.SourceGenerated:
			filter = models.GeneratedFilter(true)
		case models.SourceScanned:
			filter = models.GeneratedFilter(false)
		default:
			return filter, fmt.Errorf("unknown source %q (expected generated or scanned)", source)
		}
	}

	if limit < 0 {
		return filter, fmt.Errorf("limit must not be negative")
	}
	filter.Limit = limit
	return filter, nil
}

// parseSince accepts an RFC3339 timestamp or a look-back duration such as 24h
func parseSince(value string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q (use RFC3339 or a duration like 24h)", value)
}

func newHistoryListCmd() *cobra.Command {
	var (
		source string
		search string
		since  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List history entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := historyFilter(source, search, since, limit, time.Now())
			if err != nil {
				return err
			}

			return withApplication(cmd, func(app *Application) error {
				records, err := app.repository.GetQRCodes(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("failed to load history: %s", utils.UserMessage(err))
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No QR codes in history")
					return nil
				}
				return writeTable(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "only generated or scanned codes")
	cmd.Flags().StringVarP(&search, "search", "q", "", "only codes whose content contains this text")
	cmd.Flags().StringVar(&since, "since", "", "only codes recorded since an RFC3339 time or a duration ago")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entries (0 for all)")

	return cmd
}

// writeTable prints records as aligned columns
func writeTable(w io.Writer, records []*models.QRCode) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSOURCE\tRECORDED\tCONTENT")
	for _, qr := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s (%s)\t%s\n",
			qr.ID,
			qr.Type,
			qr.Source(),
			utils.FormatDateTime(qr.Timestamp),
			utils.FormatRelative(qr.Timestamp),
			truncate(qr.Content, maxListContent),
		)
	}
	return tw.Flush()
}

// truncate shortens s to n runes on a single line
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete one history entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid id %q", args[0])
			}

			return withApplication(cmd, func(app *Application) error {
				if err := app.repository.DeleteQRCodeByID(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to delete QR code: %s", utils.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
				return nil
			})
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *Application) error {
				if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all history entries?") {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}

				deleted, err := app.settings.ClearAllHistory(cmd.Context())
				if err != nil {
					return fmt.Errorf("%s", app.settings.Error.Get())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", deleted)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on in
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func newHistoryCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of history entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *Application) error {
				count, err := app.repository.GetQRCodeCount(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to count history: %s", utils.UserMessage(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the history as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != "json" && format != "csv" {
				return fmt.Errorf("unsupported export format %q (expected json or csv)", format)
			}

			return withApplication(cmd, func(app *Application) error {
				records, err := app.repository.GetAllQRCodes(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to load history: %s", utils.UserMessage(err))
				}

				w := cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create export file: %w", err)
					}
					defer f.Close()
					w = f
				}

				if format == "csv" {
					err = exportCSV(w, records)
				} else {
					err = exportJSON(w, records)
				}
				if err != nil {
					return fmt.Errorf("failed to export history: %w", err)
				}

				if output != "" && output != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(records), output)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "export format: json or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func exportJSON(w io.Writer, records []*models.QRCode) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func exportCSV(w io.Writer, records []*models.QRCode) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "content", "type", "source", "timestamp"}); err != nil {
		return err
	}
	for _, qr := range records {
		row := []string{
			strconv.FormatInt(qr.ID, 10),
			qr.Content,
			string(qr.Type),
			qr.Source(),
			qr.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// newSettingsCmd shows the preferences and history size
func newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show preferences and history statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *Application) error {
				settings := app.settings.Snapshot()
				if msg := app.settings.Error.Get(); msg != "" {
					return fmt.Errorf("%s", msg)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Dark theme:    %s\n", onOff(settings.DarkTheme))
				fmt.Fprintf(out, "Auto-copy:     %s\n", onOff(settings.AutoCopy))
				fmt.Fprintf(out, "History count: %d\n", settings.HistoryCount)

				stats, err := app.repository.GetStorageStats(cmd.Context())
				if err != nil {
					app.logger.WithError(err).Warn("Failed to load storage statistics")
					return nil
				}
				fmt.Fprintf(out, "Generated:     %d\n", stats.GeneratedQRCodes)
				fmt.Fprintf(out, "Scanned:       %d\n", stats.ScannedQRCodes)
				fmt.Fprintf(out, "Database size: %s\n", utils.FormatBytes(stats.DatabaseSize))
				if stats.LatestQRCode != nil {
					fmt.Fprintf(out, "Last activity: %s\n", utils.FormatRelative(*stats.LatestQRCode))
				}
				return nil
			})
		},
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
