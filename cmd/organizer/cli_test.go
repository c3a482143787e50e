package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/fruitsalade/fruitsalade/organizer/internal/app"
	"github.com/fruitsalade/fruitsalade/organizer/internal/config"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/pipeline"
)

func testApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), &config.Config{
		ObjectStoreDriver:  "aws",
		S3Region:           "us-east-1",
		PermissionsBackend: "static",
		UsageBackend:       "static",
		Workers:            2,
		PageLimit:          2,
		MaxPageLimit:       100,
		ExifMaxReadBytes:   1 << 20,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

// runCLI runs args against a fresh CLI and returns stdout.
func runCLI(t *testing.T, a *app.App, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	ca := newCLIApp(a)
	ca.Writer = &out
	ca.ErrWriter = &bytes.Buffer{}
	ca.Reader = strings.NewReader(stdin)
	err := ca.Run(append([]string{"organizer"}, args...))
	return out.String(), err
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestListFollowsCursors(t *testing.T) {
	a := testApp(t)
	root := writeTree(t, map[string]string{
		"a.pdf": "a", "b.jpg": "b", "c.mp3": "c", ".hidden.txt": "h",
	})

	out, err := runCLI(t, a, "", "list", "--all", root)
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	var names []string
	pages := 0
	for dec.More() {
		var p models.Page
		require.NoError(t, dec.Decode(&p))
		pages++
		for _, f := range p.Files {
			names = append(names, f.Name)
		}
	}
	assert.Equal(t, 2, pages)
	assert.ElementsMatch(t, []string{"a.pdf", "b.jpg", "c.mp3"}, names)
}

func TestListRejectsBadCursor(t *testing.T) {
	a := testApp(t)
	root := writeTree(t, map[string]string{"a.pdf": "a"})

	_, err := runCLI(t, a, "", "list", "--cursor", "not-a-cursor", root)
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestMissingArgument(t *testing.T) {
	a := testApp(t)
	for _, cmd := range []string{"check", "list", "exif", "classify", "run"} {
		_, err := runCLI(t, a, "", cmd)
		require.Error(t, err, cmd)
		assert.Contains(t, err.Error(), "argument is required", cmd)
	}
}

func TestClassifyThenPlan(t *testing.T) {
	a := testApp(t)
	root := writeTree(t, map[string]string{"invoice_final.pdf": "%PDF-1.4"})

	out, err := runCLI(t, a, "", "classify", "--text", "Total amount due by Friday", filepath.Join(root, "invoice_final.pdf"))
	require.NoError(t, err)
	var c models.Classification
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, models.CategoryDocuments, c.PrimaryCategory)
	assert.Equal(t, "invoice", c.Subcategory)

	out, err = runCLI(t, a, out, "plan")
	require.NoError(t, err)
	var s models.PathSuggestion
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "Documents/Financial/Invoices", s.PrimaryPath)
}

func TestClassifyNeedsSizeForRemoteKeys(t *testing.T) {
	a := testApp(t)
	_, err := runCLI(t, a, "", "classify", "--no-exif", "s3://bucket/report.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass --size")

	out, err := runCLI(t, a, "", "classify", "--no-exif", "--size", "2048", "s3://bucket/report.docx")
	require.NoError(t, err)
	assert.Contains(t, out, `"primary_category": "documents"`)
}

func TestReadPlanRequest(t *testing.T) {
	req, err := readPlanRequest(strings.NewReader(`{"classification":{"primary_category":"audio"},"journal_context":{"keywords":["work"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "audio", req.Classification.PrimaryCategory)
	assert.Equal(t, []string{"work"}, req.JournalContext.Keywords)

	req, err = readPlanRequest(strings.NewReader(`{"primary_category":"videos"}`))
	require.NoError(t, err)
	assert.Equal(t, "videos", req.Classification.PrimaryCategory)

	_, err = readPlanRequest(strings.NewReader("  "))
	assert.ErrorContains(t, err, "must be piped")

	_, err = readPlanRequest(strings.NewReader("{"))
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestRunJob(t *testing.T) {
	a := testApp(t)
	root := writeTree(t, map[string]string{
		"inbox/budget.xlsx":  "xlsx",
		"inbox/slides.pptx":  "pptx",
		"inbox/holiday.mp4":  "mp4",
		"inbox/sub/song.mp3": "mp3",
	})

	out, err := runCLI(t, a, "", "run", "--user", "alice", "--tier", "Pro", filepath.Join(root, "inbox"))
	var m pipeline.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	if m.Status == pipeline.StatusRejected {
		assert.Equal(t, exitRejected, exitCode(err))
		return
	}
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, m.Status)
	assert.Equal(t, 4, m.Summary.Files)
	assert.Equal(t, 2, m.Summary.Pages)
}

func TestRunRejectsOversizedScope(t *testing.T) {
	a := testApp(t)
	files := map[string]string{}
	for i := 0; i < 101; i++ {
		files[fmt.Sprintf("big/f%03d.txt", i)] = "x"
	}
	root := writeTree(t, files)

	out, err := runCLI(t, a, "", "check", "--user", "bob", root)
	require.Error(t, err)
	assert.Equal(t, exitRejected, exitCode(err))
	assert.Contains(t, out, "exceeding limit of 100")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 7, exitCode(cli.Exit("x", 7)))
	assert.Equal(t, exitFailure, exitCode(assert.AnError))
}
