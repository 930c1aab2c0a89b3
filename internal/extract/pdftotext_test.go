package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error

	gotName string
	gotArgs []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.gotName = name
	s.gotArgs = args
	return s.stdout, s.stderr, s.err
}

func TestExtract_PDF(t *testing.T) {
	t.Run("returns pdftotext output", func(t *testing.T) {
		runner := &stubRunner{stdout: []byte("page one\fpage two")}
		e := NewWithRunner(Config{}, runner)

		res, err := e.Extract(context.Background(), "/tmp/bill.pdf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != "page one\fpage two" {
			t.Errorf("text = %q", res.Text)
		}
		if res.Pages != 2 {
			t.Errorf("pages = %d, want 2", res.Pages)
		}
		if res.Method != "pdf-text" {
			t.Errorf("method = %q, want pdf-text", res.Method)
		}
		if runner.gotName != "pdftotext" {
			t.Errorf("command = %q, want pdftotext", runner.gotName)
		}
	})

	t.Run("command failure is an extraction failure", func(t *testing.T) {
		runner := &stubRunner{err: errors.New("exit status 1"), stderr: []byte("Syntax Error")}
		e := NewWithRunner(Config{}, runner)

		if _, err := e.Extract(context.Background(), "/tmp/broken.pdf"); err == nil {
			t.Fatal("expected error for failing pdftotext")
		}
	})

	t.Run("configured binary path is used", func(t *testing.T) {
		runner := &stubRunner{stdout: []byte("ok")}
		e := NewWithRunner(Config{Pdftotext: "/opt/poppler/bin/pdftotext"}, runner)

		if _, err := e.Extract(context.Background(), "/tmp/bill.PDF"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runner.gotName != "/opt/poppler/bin/pdftotext" {
			t.Errorf("command = %q", runner.gotName)
		}
	})
}

func TestExtract_PlainText(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads txt file", func(t *testing.T) {
		path := filepath.Join(dir, "bill.txt")
		if err := os.WriteFile(path, []byte("Total £12.00"), 0o600); err != nil {
			t.Fatal(err)
		}
		e := New(Config{})

		res, err := e.Extract(context.Background(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != "Total £12.00" {
			t.Errorf("text = %q", res.Text)
		}
		if res.Method != "plain-text" {
			t.Errorf("method = %q", res.Method)
		}
	})

	t.Run("binary content rejected", func(t *testing.T) {
		path := filepath.Join(dir, "binary.txt")
		if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0o600); err != nil {
			t.Fatal(err)
		}
		e := New(Config{})

		if _, err := e.Extract(context.Background(), path); err == nil {
			t.Fatal("expected error for non-UTF8 content")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		e := New(Config{})
		if _, err := e.Extract(context.Background(), filepath.Join(dir, "missing.txt")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestExtract_UnsupportedExtension(t *testing.T) {
	e := New(Config{})
	if _, err := e.Extract(context.Background(), "/tmp/bill.docx"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
