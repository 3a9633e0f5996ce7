package daq

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// SimConfig describes the synthetic card.
type SimConfig struct {
	HWChannels     int     // channels scanned per frame
	ScansPerHalf   int     // scans in one half-buffer
	HalvesPerEvent int     // halves produced per trigger cycle
	SampleRate     float64 // Hz
	ToneHz         float64 // frequency of the generated tone
}

// SimDriver is an in-memory Driver that produces triggered sine events.
// Each cycle fires immediately on Arm and delivers HalvesPerEvent halves,
// alternating strictly 0,1,0,1,... before reporting stop.
type SimDriver struct {
	cfg    SimConfig
	halves [2][]uint16

	phase      float64
	cur        int  // half due to be filled next
	served     int  // halves delivered this cycle
	pendingAck bool // a reported half has not been acked yet
	total      uint32
}

// NewSim builds a simulated card. The config must carry positive channel,
// scan and half counts.
func NewSim(cfg SimConfig) (*SimDriver, error) {
	if cfg.HWChannels <= 0 || cfg.ScansPerHalf <= 0 || cfg.HalvesPerEvent <= 0 {
		return nil, errors.Errorf("daq: bad sim config %+v", cfg)
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 20e6
	}
	if cfg.ToneHz == 0 {
		cfg.ToneHz = 1e6
	}

	d := &SimDriver{cfg: cfg}
	n := cfg.ScansPerHalf * cfg.HWChannels
	d.halves[0] = make([]uint16, n)
	d.halves[1] = make([]uint16, n)
	return d, nil
}

func (d *SimDriver) Arm() error {
	d.cur = 0
	d.served = 0
	d.pendingAck = false
	return nil
}

// Triggered always fires on the first poll; the simulated card has nothing
// to wait for.
func (d *SimDriver) Triggered() (bool, error) {
	return true, nil
}

func (d *SimDriver) HalfReady() (ready, stopped bool, err error) {
	if d.pendingAck {
		return false, false, ErrOverrun
	}
	if d.served >= d.cfg.HalvesPerEvent {
		return false, true, nil
	}

	d.fill(d.halves[d.cur])
	d.served++
	d.pendingAck = true
	return true, false, nil
}

func (d *SimDriver) HalfBuffer(idx int) []uint16 {
	return d.halves[idx]
}

func (d *SimDriver) Ack() {
	d.pendingAck = false
	d.cur = 1 - d.cur
}

func (d *SimDriver) Clear() (startPos, count uint32) {
	count = d.total
	d.total = 0
	d.served = 0
	d.pendingAck = false
	return 0, count
}

func (d *SimDriver) Close() error { return nil }

// fill writes one half-buffer of phase-shifted sine samples. The half-LSB
// dither matches what the real front end shows; without it the synthetic
// spectra are implausibly clean.
func (d *SimDriver) fill(buf []uint16) {
	const mid = 32768.0
	const amplitude = 30000.0

	phaseStep := 2 * math.Pi * d.cfg.ToneHz / d.cfg.SampleRate

	for s := 0; s < d.cfg.ScansPerHalf; s++ {
		for c := 0; c < d.cfg.HWChannels; c++ {
			chPhase := d.phase + float64(c)*(math.Pi/8)
			dither := rand.Float64() - 0.5

			val := mid + amplitude*math.Sin(chPhase) + dither
			if val < 0 {
				val = 0
			}
			if val > 65535 {
				val = 65535
			}
			buf[s*d.cfg.HWChannels+c] = uint16(val)
		}
		d.phase += phaseStep
		if d.phase > 2*math.Pi {
			d.phase -= 2 * math.Pi
		}
	}
	d.total += uint32(len(buf))
}
