package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"pdfa-converter/internal/models"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestOfficeConvertProducesOutput(t *testing.T) {
	// args: --headless --convert-to pdf --outdir <dir> <input>
	bin := writeScript(t, `dir="$5"
in="$6"
name=$(basename "$in")
printf 'converted' > "$dir/${name%.*}.pdf"
`)
	outDir := t.TempDir()
	input := filepath.Join(t.TempDir(), "letter.docx")
	if err := os.WriteFile(input, []byte("doc"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	c := NewOfficeCmd(bin, time.Minute)
	produced, err := c.Convert(context.Background(), input, outDir)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if produced != filepath.Join(outDir, "letter.pdf") {
		t.Fatalf("unexpected produced path %q", produced)
	}
	if _, err := os.Stat(produced); err != nil {
		t.Fatalf("produced file missing: %v", err)
	}
}

func TestOfficeConvertTimeoutKillsProcess(t *testing.T) {
	bin := writeScript(t, "sleep 10\n")
	c := NewOfficeCmd(bin, 100*time.Millisecond)

	start := time.Now()
	_, err := c.Convert(context.Background(), "in.docx", t.TempDir())
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process not killed on timeout, took %s", elapsed)
	}
	var oerr *OfficeError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OfficeError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
}

func TestOfficeConvertCapturesDiagnostics(t *testing.T) {
	bin := writeScript(t, "echo 'source file corrupt' >&2\nexit 3\n")
	c := NewOfficeCmd(bin, time.Minute)

	_, err := c.Convert(context.Background(), "in.docx", t.TempDir())
	var oerr *OfficeError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OfficeError, got %v", err)
	}
	if !strings.Contains(oerr.Output, "source file corrupt") {
		t.Fatalf("diagnostic output not preserved: %q", oerr.Output)
	}
}

func TestOfficeConvertMissingDeclaredOutput(t *testing.T) {
	bin := writeScript(t, "exit 0\n")
	c := NewOfficeCmd(bin, time.Minute)

	_, err := c.Convert(context.Background(), "in.docx", t.TempDir())
	var oerr *OfficeError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OfficeError for missing output, got %v", err)
	}
}

func TestAssembleWrapsEngineFailure(t *testing.T) {
	bin := writeScript(t, "echo 'bad image' >&2\nexit 1\n")
	c := NewAssemblerCmd(bin, time.Minute)

	err := c.Assemble(context.Background(), []string{"a.jpg"}, filepath.Join(t.TempDir(), "out.pdf"))
	var eerr *Error
	if !errors.As(err, &eerr) {
		t.Fatalf("expected engine Error, got %v", err)
	}
	if eerr.Engine != "assemble" || !strings.Contains(eerr.Output, "bad image") {
		t.Fatalf("diagnostic not preserved: %+v", eerr)
	}
}

func TestOCRArgsMapping(t *testing.T) {
	c := NewOCRCmd("ocrmypdf", time.Minute)
	opts := OCROptions{
		Languages: []string{"eng", "deu"},
		PDFALevel: 3,
		ForceOCR:  true,
		Compression: models.CompressionSettings{
			DPI:                300,
			JPEGQuality:        80,
			RemoveVectors:      true,
			OptimizeLevel:      2,
			JBIG2Lossy:         true,
			JBIG2PageGroupSize: 10,
		},
	}
	got := c.args("in.pdf", "out.pdf", opts)
	want := []string{
		"--output-type", "pdfa-3",
		"--language", "eng+deu",
		"--force-ocr",
		"--image-dpi", "300",
		"--jpeg-quality", "80",
		"--optimize", "2",
		"--remove-vectors",
		"--jbig2-lossy", "--jbig2-page-group-size", "10",
		"in.pdf", "out.pdf",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestOCRArgsSkipText(t *testing.T) {
	c := NewOCRCmd("ocrmypdf", time.Minute)
	got := c.args("in.pdf", "out.pdf", OCROptions{
		PDFALevel:   2,
		SkipText:    true,
		Compression: models.CompressionSettings{DPI: 300, JPEGQuality: 75, OptimizeLevel: 1},
	})
	joined := strings.Join(got, " ")
	if strings.Contains(joined, "--force-ocr") {
		t.Fatal("skip-text conversion must not force OCR")
	}
	if !strings.Contains(joined, "--skip-text") {
		t.Fatal("skip-text flag missing")
	}
}
