package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherFiresOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.txt")
	if err := os.WriteFile(path, []byte("IN a\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("IN a\nOUT q\n"), 0o644); err != nil {
		t.Fatalf("WriteFile (update): %v", err)
	}

	select {
	case <-w.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reload event after writing the watched file")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.txt")
	other := filepath.Join(dir, "other.txt")
	if err := os.WriteFile(path, []byte("IN a\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(other, []byte("noise"), 0o644); err != nil {
		t.Fatalf("WriteFile (other): %v", err)
	}

	select {
	case <-w.Events:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCoalescesBurstsIntoOneEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.txt")
	if err := os.WriteFile(path, []byte("IN a\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("IN a\nOUT q\n"), 0o644); err != nil {
			t.Fatalf("WriteFile (burst %d): %v", i, err)
		}
	}

	select {
	case <-w.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one reload event after a burst of writes")
	}

	// The channel is buffered to size 1 and coalesces; draining it should not
	// immediately yield a second backlog entry.
	select {
	case <-w.Events:
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseStopsDeliveringEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.txt")
	if err := os.WriteFile(path, []byte("IN a\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-w.Events:
		if ok {
			t.Fatal("expected Events to be closed after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Events channel was never closed after Close")
	}
}
