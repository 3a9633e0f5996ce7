// Package batch accumulates completed acquisition events in memory and
// flushes them in bulk to timestamped log files. A log file is a short
// plain-text header (newline-terminated KEY:VALUE lines, ended by a blank
// line) followed by the raw event payloads concatenated back to back.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Event is one completed trigger cycle's worth of selected-channel samples.
// The payload is owned by the batch once added.
type Event struct {
	Data []byte
}

// Meta is the fixed per-session information written into every log header.
type Meta struct {
	CodeVersion string
	Author      string
	Channels    []int // selected hardware channel indices, declared order
}

// Batch is a capacity-bounded ordered sequence of events. Add and Flush are
// mutually exclusive so a flush always sees a consistent snapshot.
type Batch struct {
	mu       sync.Mutex
	meta     Meta
	capacity int
	events   []Event
}

// New returns an empty batch that signals a flush once capacity events have
// been added.
func New(capacity int, meta Meta) *Batch {
	return &Batch{
		meta:     meta,
		capacity: capacity,
		events:   make([]Event, 0, capacity),
	}
}

// Add appends an event and reports whether the batch has reached capacity.
// The caller is expected to flush synchronously when it has.
func (b *Batch) Add(ev Event) (full bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return len(b.events) >= b.capacity
}

// Len returns the number of buffered events.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush writes every buffered event into one new log file under dir and
// resets the batch. On any failure the batch is left intact so a later
// flush can retry with the same events; the caller decides what to do with
// the error. An empty batch flushes to nothing.
func (b *Batch) Flush(dir string) (path string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return "", nil
	}

	now := time.Now()
	f, path, err := createLogFile(dir, now, len(b.events))
	if err != nil {
		return "", errors.Wrap(err, "batch: create log file")
	}

	if _, err := f.WriteString(headerText(now, b.meta, len(b.events))); err != nil {
		f.Close()
		return "", errors.Wrap(err, "batch: write header")
	}

	for i := range b.events {
		if _, err := f.Write(b.events[i].Data); err != nil {
			f.Close()
			return "", errors.Wrapf(err, "batch: write event %d", i)
		}
	}

	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "batch: close log file")
	}

	// Only release payloads once the file is safely on disk.
	for i := range b.events {
		b.events[i].Data = nil
	}
	b.events = b.events[:0]
	return path, nil
}

// createLogFile opens a uniquely named log file. The timestamp has second
// resolution, so two flushes of equal size in the same second would collide
// on the canonical name; O_EXCL plus a sequence infix keeps every flush in
// its own file.
func createLogFile(dir string, ts time.Time, count int) (*os.File, string, error) {
	stamp := ts.Format("20060102_150405")
	for seq := 0; ; seq++ {
		name := fmt.Sprintf("batch_log_%s_%04d_evt.bin", stamp, count)
		if seq > 0 {
			name = fmt.Sprintf("batch_log_%s_%d_%04d_evt.bin", stamp, seq, count)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, "", err
		}
		return f, path, nil
	}
}

func headerText(ts time.Time, meta Meta, count int) string {
	names := ChannelNames(meta.Channels)
	return fmt.Sprintf(
		"TEST_DATE:%s\n"+
			"CODE_VERSION:%s\n"+
			"AUTHOR:%s\n"+
			"BATCH_EVENT_COUNT:%d\n"+
			"SAVED_CHANNELS:%s\n"+
			"INTERLEAVE_ORDER:%s\n\n",
		ts.Format("2006-01-02 15:04:05"),
		meta.CodeVersion, meta.Author, count, names, names)
}

// ChannelNames renders hardware channel indices as the CH<i> list used in
// log headers, e.g. {1, 3} -> "CH1,CH3".
func ChannelNames(channels []int) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = fmt.Sprintf("CH%d", ch)
	}
	return strings.Join(parts, ",")
}
