package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rhamaa/RadarLPDP/pkg/batch"
	"github.com/rhamaa/RadarLPDP/pkg/daq"
	"github.com/rhamaa/RadarLPDP/pkg/extract"
)

// scriptDriver plays back fixed half-buffer payloads: one outer slice entry
// per trigger cycle, each holding that cycle's halves in arrival order.
type scriptDriver struct {
	events [][][]uint16
	onArm  func(cycle int)

	ev, half, cur int
	cycle         int
	pending       bool
	buf           [2][]uint16
}

func (d *scriptDriver) Arm() error {
	d.cycle++
	if d.onArm != nil {
		d.onArm(d.cycle)
	}
	d.half = 0
	d.cur = 0
	d.pending = false
	return nil
}

func (d *scriptDriver) Triggered() (bool, error) { return true, nil }

func (d *scriptDriver) HalfReady() (ready, stopped bool, err error) {
	if d.pending {
		return false, false, daq.ErrOverrun
	}
	if d.ev >= len(d.events) || d.half >= len(d.events[d.ev]) {
		return false, true, nil
	}
	d.buf[d.cur] = d.events[d.ev][d.half]
	d.half++
	d.pending = true
	return true, false, nil
}

func (d *scriptDriver) HalfBuffer(idx int) []uint16 { return d.buf[idx] }

func (d *scriptDriver) Ack() {
	d.pending = false
	d.cur = 1 - d.cur
}

func (d *scriptDriver) Clear() (uint32, uint32) {
	d.ev++
	return 0, 0
}

func (d *scriptDriver) Close() error { return nil }

func testConfig(t *testing.T) SessionConfig {
	t.Helper()
	return SessionConfig{
		HWChannels:    4,
		Selection:     []int{1, 3},
		ScansPerHalf:  2,
		BatchCapacity: 1000,
		LogDir:        t.TempDir(),
		LiveDir:       t.TempDir(),
		LiveName:      "live.bin",
		CodeVersion:   codeVersion,
		Author:        authorName,
	}
}

// leBytes renders samples the way event payloads are stored.
func leBytes(samples []uint16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], s)
	}
	return out
}

func readLog(t *testing.T, dir string) (*batch.Header, []byte) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log dir holds %d files, want 1", len(entries))
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	h, err := batch.ParseHeader(r)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return h, payload
}

func TestEventPreservesArrivalOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.EventLimit = 1

	halves := [][]uint16{
		{10, 20, 30, 40, 11, 21, 31, 41},
		{50, 60, 70, 80, 51, 61, 71, 81},
		{90, 91, 92, 93, 94, 95, 96, 97},
	}
	drv := &scriptDriver{events: [][][]uint16{halves}}

	sess, err := NewSession(drv, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The event must be the concatenation of the per-half extractions in
	// arrival order.
	var want []byte
	for _, h := range halves {
		want = append(want, leBytes(extract.Channels(h, cfg.HWChannels, cfg.Selection))...)
	}

	h, payload := readLog(t, cfg.LogDir)
	if h.EventCount != 1 {
		t.Fatalf("EventCount = %d, want 1", h.EventCount)
	}
	if !bytes.Equal(payload, want) {
		t.Errorf("event payload out of order:\n got %v\nwant %v", payload, want)
	}

	// The live snapshot mirrors the same bytes.
	live, err := os.ReadFile(filepath.Join(cfg.LiveDir, cfg.LiveName))
	if err != nil {
		t.Fatalf("read live snapshot: %v", err)
	}
	if !bytes.Equal(live, want) {
		t.Errorf("live snapshot differs from event payload")
	}
}

func TestBatchFlushesAtCapacity(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchCapacity = 2
	cfg.EventLimit = 5

	half := []uint16{1, 2, 3, 4, 5, 6, 7, 8}
	events := make([][][]uint16, 5)
	for i := range events {
		events[i] = [][]uint16{half}
	}
	drv := &scriptDriver{events: events}

	sess, err := NewSession(drv, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 5 events at capacity 2: two full flushes plus the final one.
	entries, err := os.ReadDir(cfg.LogDir)
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d log files, want 3", len(entries))
	}

	total := 0
	for _, e := range entries {
		f, err := os.Open(filepath.Join(cfg.LogDir, e.Name()))
		if err != nil {
			t.Fatalf("open %s: %v", e.Name(), err)
		}
		h, err := batch.ParseHeader(bufio.NewReader(f))
		f.Close()
		if err != nil {
			t.Fatalf("parse %s: %v", e.Name(), err)
		}
		if h.EventCount > cfg.BatchCapacity {
			t.Errorf("%s holds %d events, above capacity %d", e.Name(), h.EventCount, cfg.BatchCapacity)
		}
		total += h.EventCount
	}
	if total != 5 {
		t.Errorf("flushed %d events in total, want 5", total)
	}
}

func TestOversizedEventIsDiscarded(t *testing.T) {
	cfg := testConfig(t)
	cfg.EventLimit = 2
	// One chunk fits exactly, a second one goes over the cap.
	cfg.MaxEventBytes = cfg.ScansPerHalf * len(cfg.Selection) * 2

	half := []uint16{1, 2, 3, 4, 5, 6, 7, 8}
	drv := &scriptDriver{events: [][][]uint16{
		{half, half}, // cycle 1: grows past the cap on the second half
		{half},       // cycle 2: fine
	}}

	sess, err := NewSession(drv, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the second cycle's event survives.
	h, payload := readLog(t, cfg.LogDir)
	if h.EventCount != 1 {
		t.Fatalf("EventCount = %d, want 1 (oversized event must not be batched)", h.EventCount)
	}
	want := leBytes(extract.Channels(half, cfg.HWChannels, cfg.Selection))
	if !bytes.Equal(payload, want) {
		t.Errorf("surviving event payload mismatch")
	}
}

func TestInterruptFlushesPartialBatch(t *testing.T) {
	cfg := testConfig(t)

	half := []uint16{1, 2, 3, 4, 5, 6, 7, 8}
	events := make([][][]uint16, 10)
	for i := range events {
		events[i] = [][]uint16{half}
	}

	ctx, cancel := context.WithCancel(context.Background())
	drv := &scriptDriver{events: events}
	drv.onArm = func(cycle int) {
		if cycle == 4 {
			cancel()
		}
	}

	sess, err := NewSession(drv, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Three completed cycles before the interrupt; all must reach disk.
	h, _ := readLog(t, cfg.LogDir)
	if h.EventCount != 3 {
		t.Errorf("final flush holds %d events, want 3", h.EventCount)
	}
}

func TestSpectralStageConstantInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.EventLimit = 1
	cfg.SpectralOut = "live_fft.bin"

	// Constant samples on every channel: after zero-centering the spectrum
	// must be identically zero.
	half := make([]uint16, cfg.ScansPerHalf*cfg.HWChannels)
	for i := range half {
		half[i] = 5000
	}
	drv := &scriptDriver{events: [][][]uint16{{half}}}

	sess, err := NewSession(drv, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.LiveDir, cfg.SpectralOut))
	if err != nil {
		t.Fatalf("read spectrum: %v", err)
	}
	if len(raw) != cfg.ScansPerHalf*8 {
		t.Fatalf("spectrum is %d bytes, want %d", len(raw), cfg.ScansPerHalf*8)
	}
	for i := 0; i < len(raw); i += 4 {
		if bits := binary.LittleEndian.Uint32(raw[i:]); bits != 0 {
			t.Fatalf("magnitude bin at byte %d is %#x, want zero", i, bits)
		}
	}
}
