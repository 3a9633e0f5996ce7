package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"path/filepath"

	"github.com/rhamaa/RadarLPDP/pkg/batch"
	"github.com/rhamaa/RadarLPDP/pkg/daq"
	"github.com/rhamaa/RadarLPDP/pkg/extract"
	"github.com/rhamaa/RadarLPDP/pkg/livefile"
	"github.com/rhamaa/RadarLPDP/pkg/spectral"
)

// SessionConfig carries the runtime-configured capacities of one
// acquisition session. Everything here used to be a compile-time constant
// on the embedded side; validating it once at session start lets the same
// loop serve different card setups.
type SessionConfig struct {
	HWChannels    int   // channels scanned by the card, contiguous from CH0
	Selection     []int // hardware channels to keep, in output interleave order
	ScansPerHalf  int   // scans per DMA half-buffer (also the FFT size)
	BatchCapacity int   // events per flushed log file
	MaxEventBytes int   // per-event growth cap; 0 means unbounded
	EventLimit    int   // trigger cycles to run; 0 means until cancelled

	LogDir      string
	LiveDir     string
	LiveName    string
	SpectralOut string // spectrum filename under LiveDir; empty disables the stage

	CodeVersion string
	Author      string
}

func (c *SessionConfig) validate() error {
	if c.HWChannels <= 0 {
		return fmt.Errorf("hardware channel count must be positive, got %d", c.HWChannels)
	}
	if c.ScansPerHalf <= 0 {
		return fmt.Errorf("scans per half-buffer must be positive, got %d", c.ScansPerHalf)
	}
	if c.BatchCapacity <= 0 {
		return fmt.Errorf("batch capacity must be positive, got %d", c.BatchCapacity)
	}
	if len(c.Selection) == 0 {
		return fmt.Errorf("channel selection is empty")
	}
	for _, ch := range c.Selection {
		if ch < 0 || ch >= c.HWChannels {
			return fmt.Errorf("selected channel %d outside scanned range [0,%d)", ch, c.HWChannels)
		}
	}
	if c.SpectralOut != "" && len(c.Selection) != 2 {
		return fmt.Errorf("spectral stage needs exactly 2 selected channels, got %d", len(c.Selection))
	}
	if c.LiveName == "" {
		c.LiveName = "live_acquisition_ui.bin"
	}
	return nil
}

// Session drives trigger cycles against one card: drain the double buffer,
// extract the selected channels, mirror the live view, batch completed
// events and flush them to log files.
type Session struct {
	cfg  SessionConfig
	drv  daq.Driver
	live *livefile.Publisher
	bat  *batch.Batch
	fft  *spectral.Processor

	scratch    []uint16 // reused extraction buffer, one chunk
	chunkBuf   []byte   // reused little-endian encoding of scratch
	chunkBytes int
	cycles     int
}

// NewSession validates cfg and wires the pipeline around drv.
func NewSession(drv daq.Driver, cfg SessionConfig) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("session config: %v", err)
	}

	s := &Session{
		cfg:        cfg,
		drv:        drv,
		live:       &livefile.Publisher{Dir: cfg.LiveDir, Name: cfg.LiveName},
		chunkBytes: cfg.ScansPerHalf * len(cfg.Selection) * 2,
	}
	s.bat = batch.New(cfg.BatchCapacity, batch.Meta{
		CodeVersion: cfg.CodeVersion,
		Author:      cfg.Author,
		Channels:    cfg.Selection,
	})
	s.scratch = make([]uint16, 0, cfg.ScansPerHalf*len(cfg.Selection))
	s.chunkBuf = make([]byte, s.chunkBytes)
	if cfg.SpectralOut != "" {
		s.fft = spectral.New(cfg.ScansPerHalf)
	}
	return s, nil
}

// Run executes trigger cycles until the context is cancelled, the
// configured event limit is reached, or the driver fails fatally. Any
// non-empty batch is flushed before returning, on every path.
func (s *Session) Run(ctx context.Context) error {
	defer s.drv.Close()
	defer s.flush()

	for {
		if s.cfg.EventLimit > 0 && s.cycles >= s.cfg.EventLimit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		stop, err := s.runCycle(ctx)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// runCycle runs one trigger cycle: Idle -> Armed -> Draining -> Completed
// or Aborted. stop reports that the session should end (cancellation);
// err reports a driver-fatal condition.
func (s *Session) runCycle(ctx context.Context) (stop bool, err error) {
	s.cycles++

	if err := s.drv.Arm(); err != nil {
		return true, fmt.Errorf("arming cycle %d: %v", s.cycles, err)
	}

	// Armed: wait for the trigger, checking for cancellation at each poll.
	for {
		if ctx.Err() != nil {
			return true, nil
		}
		fired, err := s.drv.Triggered()
		if err != nil {
			return true, fmt.Errorf("trigger poll: %v", err)
		}
		if fired {
			break
		}
	}

	s.live.Begin()

	var (
		event     []byte
		aborted   bool
		cancelled bool
		idx       int // half due next; strict 0,1,0,1 from the trigger
	)

	for {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		ready, stopped, err := s.drv.HalfReady()
		if err != nil {
			s.live.Abort()
			return true, fmt.Errorf("half-buffer poll: %v", err)
		}
		if stopped {
			break
		}
		if !ready {
			continue
		}

		src := s.drv.HalfBuffer(idx)
		s.scratch = extract.AppendChannels(s.scratch[:0], src, s.cfg.HWChannels, s.cfg.Selection)

		if !aborted {
			if s.cfg.MaxEventBytes > 0 && len(event)+s.chunkBytes > s.cfg.MaxEventBytes {
				// Event-local failure: this event is lost, the session
				// is not. Ack the half and let Clear reset the card.
				log.Printf("event %d exceeded %d bytes, discarding it", s.cycles, s.cfg.MaxEventBytes)
				event = nil
				aborted = true
				s.live.Abort()
			} else {
				for i, v := range s.scratch {
					binary.LittleEndian.PutUint16(s.chunkBuf[i*2:], v)
				}
				event = append(event, s.chunkBuf...)
				s.live.Write(s.chunkBuf)
			}
		}

		// Hand the half back before looking at the next one; the card may
		// refill it from here on.
		idx = 1 - idx
		s.drv.Ack()

		if aborted {
			break
		}
	}

	// Reset the double buffer exactly once per cycle, success or not, so
	// the next trigger starts clean.
	s.drv.Clear()

	if aborted || len(event) == 0 {
		s.live.Abort()
		return cancelled, nil
	}

	// A cancellation mid-drain still completes the in-flight event.
	if err := s.live.Publish(); err != nil {
		log.Printf("live publish skipped for event %d: %v", s.cycles, err)
	}

	if s.fft != nil {
		s.spectralStage(event)
	}

	if full := s.bat.Add(batch.Event{Data: event}); full {
		s.flush()
	}
	return cancelled, nil
}

// spectralStage writes the two-channel magnitude spectrum of a completed
// event. Failures here never reach the batching path.
func (s *Session) spectralStage(event []byte) {
	n := s.cfg.ScansPerHalf
	stride := len(s.cfg.Selection)
	if len(event) < n*stride*2 {
		return
	}

	chA := spectral.DecodeChannel(event, stride, 0, n)
	chB := spectral.DecodeChannel(event, stride, 1, n)
	magA := s.fft.Magnitudes(chA)
	magB := s.fft.Magnitudes(chB)

	path := filepath.Join(s.cfg.LiveDir, s.cfg.SpectralOut)
	if err := spectral.WriteFile(path, magA, magB); err != nil {
		log.Printf("spectral output skipped for event %d: %v", s.cycles, err)
	}
}

func (s *Session) flush() {
	n := s.bat.Len()
	path, err := s.bat.Flush(s.cfg.LogDir)
	if err != nil {
		log.Printf("WARNING: batch flush failed, keeping %d events in memory: %v", n, err)
		return
	}
	if path != "" {
		log.Printf("flushed %d events to %s", n, path)
	}
}
