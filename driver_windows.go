//go:build windows

package main

import (
	"log"

	"github.com/pkg/errors"
	"github.com/rhamaa/RadarLPDP/pkg/daq"
)

// buildDriver has no device support on Windows; sim mode falls back to the
// in-memory generator instead of a named pipe.
func buildDriver(device string, sim bool, cfg SessionConfig) (daq.Driver, error) {
	if !sim {
		return nil, errors.New("device capture is not supported on Windows; use -sim")
	}

	log.Println("[SIM] named pipes are not supported on Windows, using the in-memory generator")
	return daq.NewSim(daq.SimConfig{
		HWChannels:     cfg.HWChannels,
		ScansPerHalf:   cfg.ScansPerHalf,
		HalvesPerEvent: 2,
	})
}
