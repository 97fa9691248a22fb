package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/drummonds/pdfworker/config"
)

func TestMain(m *testing.M) {
	injectGlobals(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Renderer:        "pdfium",
		RenderScale:     3,
		ImageMaxWidth:   1190,
		ImageMaxHeight:  1684,
		ImageKeepAspect: true,
		PdfcpuConfigDir: "disable",
	}
}

func writePDF(t *testing.T, path string, pages int) {
	t.Helper()
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Text(72, 72, "page")
	}
	require.NoError(t, doc.OutputFileAndClose(path))
}

func runCommand(t *testing.T, command string, args ...string) (int, map[string]interface{}, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(command, args, testWorkerConfig(), &stdout, &stderr)
	var result map[string]interface{}
	if code == 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result), stdout.String())
	}
	return code, result, stderr.String()
}

func TestParsePages(t *testing.T) {
	pages, err := parsePages("2,0,2")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 2}, pages)

	pages, err = parsePages(" 1 , 3 ")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, pages)

	pages, err = parsePages("")
	require.NoError(t, err)
	assert.Nil(t, pages)

	_, err = parsePages("1,x")
	var usageErr usageError
	assert.ErrorAs(t, err, &usageErr)
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		command string
		args    []string
	}{
		{"explode", nil},
		{"merge", []string{"a.pdf"}},
		{"pick", []string{"-o", "out.pdf"}},
		{"check", []string{"a.pdf", "b.pdf"}},
		{"merge", []string{"-nope"}},
		{"pick", []string{"-o", "out.pdf", "-pages", "one", "in.pdf"}},
	}
	for _, tt := range tests {
		code, _, stderr := runCommand(t, tt.command, tt.args...)
		assert.Equal(t, 2, code, "%s %v", tt.command, tt.args)
		assert.Contains(t, stderr, "usage: pdfworker")
	}
}

func TestRun_MergeAndPick(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	writePDF(t, a, 2)
	writePDF(t, b, 1)

	merged := filepath.Join(dir, "merged.pdf")
	code, result, stderr := runCommand(t, "merge", "-o", merged, a, b)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, merged, result["outputPath"])

	picked := filepath.Join(dir, "picked.pdf")
	code, result, stderr = runCommand(t, "pick", "-o", picked, "-pages", "2,0,2", merged)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, picked, result["outputPath"])

	code, _, stderr = runCommand(t, "pick", "-o", picked, "-pages", "9", merged)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "OUT_OF_RANGE")

	code, _, stderr = runCommand(t, "pick", "-o", picked, merged)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "EMPTY_INPUT")

	code, _, stderr = runCommand(t, "merge", "-o", merged, filepath.Join(dir, "gone.pdf"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "NOT_FOUND")
}

func TestRun_LockCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writePDF(t, path, 1)

	code, result, stderr := runCommand(t, "check", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, false, result["protected"])

	code, _, stderr = runCommand(t, "lock", "-user", "hunter2", path)
	require.Equal(t, 0, code, stderr)

	code, result, stderr = runCommand(t, "check", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, true, result["protected"])

	code, result, stderr = runCommand(t, "sniff", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, true, result["protected"])

	code, _, stderr = runCommand(t, "unlock", "-password", "nope", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "INVALID_PASSWORD")

	code, result, stderr = runCommand(t, "unlock", "-password", "hunter2", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, false, result["protected"])
}
