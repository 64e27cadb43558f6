package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/qrcode-generator/internal/models"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := strings.Join([]string{
		"storage:",
		"  type: sqlite",
		"  connection_string: " + filepath.Join(dir, "history.db"),
		"qr:",
		"  size: 160",
		"  error_correction: L",
		"  output_dir: " + filepath.Join(dir, "out"),
		"cache:",
		"  type: memory",
		"ui:",
		"  auto_copy: false",
		"logging:",
		"  level: error",
		"  format: text",
		"  output: stderr",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path, dir
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestGenerateScanAndHistory(t *testing.T) {
	configPath, dir := writeTestConfig(t)
	image := filepath.Join(dir, "hello.png")

	out, err := run(t, configPath, "generate", "--output", image, "https://example.com/hello")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Saved "+image+" (url)")
	assert.Contains(t, out, "History entry #1")
	require.FileExists(t, image)

	out, err = run(t, configPath, "scan", image, filepath.Join(dir, "missing.png"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "[url] https://example.com/hello")
	assert.Contains(t, out, "missing.png:")

	out, err = run(t, configPath, "history", "count")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, configPath, "history", "list", "--source", "scanned")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned")
	assert.NotContains(t, out, "generated")

	out, err = run(t, configPath, "history", "export", "--format", "csv")
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "content", "type", "source", "timestamp"}, rows[0])
	assert.Equal(t, "https://example.com/hello", rows[1][1])

	exportPath := filepath.Join(dir, "history.json")
	_, err = run(t, configPath, "history", "export", "--output", exportPath)
	require.NoError(t, err)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var exported []*models.QRCode
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Len(t, exported, 2)

	out, err = run(t, configPath, "history", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted #1")

	_, err = run(t, configPath, "history", "delete", "1")
	assert.Error(t, err)

	out, err = run(t, configPath, "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "History count: 1")
	assert.Contains(t, out, "Auto-copy:     off")

	out, err = run(t, configPath, "history", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")

	out, err = run(t, configPath, "history", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 entries")

	out, err = run(t, configPath, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No QR codes in history")
}

func TestGenerateDefaultsAndErrors(t *testing.T) {
	configPath, dir := writeTestConfig(t)

	out, err := run(t, configPath, "generate", "--no-save", "plain", "text")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(text)")
	assert.NotContains(t, out, "History entry")

	matches, err := filepath.Glob(filepath.Join(dir, "out", "qr_code_*.png"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = run(t, configPath, "generate", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Please enter text or URL to generate QR code")

	_, err = run(t, configPath, "generate", "--size", "100000", "x")
	assert.Error(t, err)

	_, err = run(t, configPath, "history", "export", "--format", "xml")
	assert.Error(t, err)

	_, err = run(t, configPath, "scan", filepath.Join(dir, "nothing-here.png"))
	assert.Error(t, err)
}

func TestWatchStopsAfterFirstCode(t *testing.T) {
	configPath, dir := writeTestConfig(t)
	inbox := filepath.Join(dir, "inbox")
	require.NoError(t, os.Mkdir(inbox, 0o755))

	_, err := run(t, configPath, "generate", "--no-save", "--output", filepath.Join(inbox, "a.png"), "tel:+15551234")
	require.NoError(t, err)

	out, err := run(t, configPath, "watch", inbox)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[phone] tel:+15551234")

	out, err = run(t, configPath, "history", "list", "--source", "scanned")
	require.NoError(t, err)
	assert.Contains(t, out, "tel:+15551234")
}

func TestHistoryFilter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	filter, err := historyFilter("scanned", "needle", "", 5, now)
	require.NoError(t, err)
	assert.Equal(t, "needle", filter.Query)
	assert.Nil(t, filter.Generated)
	assert.Equal(t, 5, filter.Limit)

	filter, err = historyFilter("generated", "", "24h", 0, now)
	require.NoError(t, err)
	require.NotNil(t, filter.Since)
	assert.Equal(t, now.Add(-24*time.Hour), *filter.Since)
	assert.Nil(t, filter.Generated)

	filter, err = historyFilter("generated", "", "", 0, now)
	require.NoError(t, err)
	require.NotNil(t, filter.Generated)
	assert.True(t, *filter.Generated)

	_, err = historyFilter("elsewhere", "", "", 0, now)
	assert.Error(t, err)
	_, err = historyFilter("", "", "last week", 0, now)
	assert.Error(t, err)
	_, err = historyFilter("", "", "", -1, now)
	assert.Error(t, err)
}

func TestFormattingHelpers(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\nb\tc", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))

	at := time.UnixMilli(1700000000123)
	assert.Equal(t, filepath.Join("out", "qr_code_1700000000123.png"), defaultOutputPath("out", at))
	assert.Equal(t, "qr_code_1700000000123.png", defaultOutputPath("", at))

	assert.True(t, confirm(strings.NewReader("yes\n"), &bytes.Buffer{}, "?"))
	assert.False(t, confirm(strings.NewReader("\n"), &bytes.Buffer{}, "?"))
}
