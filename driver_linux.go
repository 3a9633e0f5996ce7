//go:build linux

package main

import (
	"time"

	"github.com/rhamaa/RadarLPDP/pkg/daq"
)

// buildDriver opens the acquisition device. In sim mode the device path is
// overridden with a named pipe fed by a background generator, so the exact
// same device driver code path is exercised end to end.
func buildDriver(device string, sim bool, cfg SessionConfig) (daq.Driver, error) {
	if sim {
		device = "/tmp/daq_trig0"
		go daq.RunFeeder(device, daq.SimConfig{
			HWChannels:     cfg.HWChannels,
			ScansPerHalf:   cfg.ScansPerHalf,
			HalvesPerEvent: 2,
		}, 0)
		// Give the feeder a moment to create the pipe.
		time.Sleep(200 * time.Millisecond)
	}

	return daq.OpenDevice(daq.DeviceConfig{
		Path:         device,
		HWChannels:   cfg.HWChannels,
		ScansPerHalf: cfg.ScansPerHalf,
	})
}
