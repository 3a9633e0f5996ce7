// Package livefile publishes the most recent event's samples for an
// external viewer. Chunks are streamed into a temp file for the duration of
// one event and the well-known path is only ever replaced by an atomic
// rename, so a reader sees either the previous complete snapshot or the new
// one, never a torn file.
package livefile

import (
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Publisher writes live snapshots under Dir/Name. The zero value is not
// usable; fill in both fields.
type Publisher struct {
	Dir  string
	Name string

	f       *os.File
	tmpPath string
	skipped bool
}

// Begin opens the temp file for a new event. If the temp file cannot be
// created the event's publication is skipped: Write becomes a no-op and
// Publish does nothing. Acquisition must not stop because the live view
// degraded, so Begin never returns an error.
func (p *Publisher) Begin() {
	p.tmpPath = filepath.Join(p.Dir, p.Name+".tmp")
	f, err := os.Create(p.tmpPath)
	if err != nil {
		log.Printf("livefile: cannot create %s, skipping live publish for this event: %v", p.tmpPath, err)
		p.f = nil
		p.skipped = true
		return
	}
	p.f = f
	p.skipped = false
}

// Write mirrors one extracted chunk into the pending snapshot.
func (p *Publisher) Write(b []byte) {
	if p.f == nil {
		return
	}
	if _, err := p.f.Write(b); err != nil {
		log.Printf("livefile: write failed, abandoning snapshot: %v", err)
		p.discard()
	}
}

// Publish closes the temp file and renames it over the final path. Called
// once per completed event.
func (p *Publisher) Publish() error {
	if p.f == nil {
		if p.skipped {
			return nil
		}
		return errors.New("livefile: Publish without Begin")
	}

	f := p.f
	p.f = nil
	if err := f.Close(); err != nil {
		os.Remove(p.tmpPath)
		return errors.Wrap(err, "livefile: close")
	}

	final := filepath.Join(p.Dir, p.Name)
	if err := os.Rename(p.tmpPath, final); err != nil {
		os.Remove(p.tmpPath)
		return errors.Wrap(err, "livefile: rename")
	}
	return nil
}

// Abort releases the temp file without publishing. Safe to call on any
// path, including after a failed Begin.
func (p *Publisher) Abort() {
	p.discard()
}

func (p *Publisher) discard() {
	if p.f != nil {
		p.f.Close()
		p.f = nil
	}
	if p.tmpPath != "" {
		os.Remove(p.tmpPath)
	}
}
