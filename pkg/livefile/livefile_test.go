package livefile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestPublishReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	p := &Publisher{Dir: dir, Name: "live_acquisition_ui.bin"}
	final := filepath.Join(dir, p.Name)

	// First event.
	p.Begin()
	p.Write([]byte{1, 2, 3, 4})
	if err := p.Publish(); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("snapshot = %v, want [1 2 3 4]", got)
	}

	// Second event overwrites in full.
	p.Begin()
	p.Write([]byte{9, 9})
	if err := p.Publish(); err != nil {
		t.Fatalf("second Publish: %v", err)
	}

	got, _ = os.ReadFile(final)
	if !bytes.Equal(got, []byte{9, 9}) {
		t.Errorf("snapshot after second event = %v, want [9 9]", got)
	}

	// No temp file may survive a publish.
	if _, err := os.Stat(filepath.Join(dir, p.Name+".tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind after publish")
	}
}

func TestAbortLeavesOldSnapshot(t *testing.T) {
	dir := t.TempDir()
	p := &Publisher{Dir: dir, Name: "live.bin"}
	final := filepath.Join(dir, p.Name)

	p.Begin()
	p.Write([]byte{7, 7, 7})
	if err := p.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	p.Begin()
	p.Write([]byte{1})
	p.Abort()

	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("snapshot gone after abort: %v", err)
	}
	if !bytes.Equal(got, []byte{7, 7, 7}) {
		t.Errorf("abort corrupted snapshot: %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, p.Name+".tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind after abort")
	}
}

func TestBeginFailureDegradesQuietly(t *testing.T) {
	p := &Publisher{Dir: filepath.Join(t.TempDir(), "does-not-exist"), Name: "live.bin"}

	p.Begin()
	p.Write([]byte{1, 2}) // must not panic
	if err := p.Publish(); err != nil {
		t.Errorf("Publish after failed Begin should be a no-op, got %v", err)
	}
}
