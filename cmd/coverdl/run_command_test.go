package main

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestRunCommandWritesArchive(t *testing.T) {
	cover := buildJPEG(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a.jpg" {
			w.Write(cover)
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "covers.csv")
	csv := "EAN,Link\n" +
		"9788301234567," + upstream.URL + "/a.jpg\n" +
		"9788307654321," + upstream.URL + "/missing.jpg\n"
	if err := os.WriteFile(input, []byte(csv), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "out.zip")

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{
		"run",
		"--input", input,
		"--out", output,
		"--delay", "0s",
		"--retries", "0",
		"--quiet",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(reader.File) != 1 || reader.File[0].Name != "9788301234567.jpg" {
		t.Fatalf("unexpected archive contents %+v", reader.File)
	}

	out := stdout.String()
	if !strings.Contains(out, "Downloaded") {
		t.Fatalf("expected stats table in output, got %q", out)
	}
	if !strings.Contains(out, "9788307654321") {
		t.Fatalf("expected failed identifier in report, got %q", out)
	}
}

func TestRunCommandSkipsArchiveWhenNothingDownloaded(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "covers.csv")
	if err := os.WriteFile(input, []byte("EAN,Link\n,\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "out.zip")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"run", "--input", input, "--out", output, "--delay", "0s", "--quiet"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("expected no archive file, stat err=%v", err)
	}
	if !strings.Contains(stdout.String(), "archive not written") {
		t.Fatalf("expected no-archive notice, got %q", stdout.String())
	}
}

func TestRunCommandRejectsUnknownColumn(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "covers.csv")
	if err := os.WriteFile(input, []byte("Code,Link\n123,http://example.com/a.jpg\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--input", input, "--delay", "0s"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown identifier column")
	}
}
