//go:build linux

package daq

import (
	"encoding/binary"
	"log"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// RunFeeder creates a named pipe at path and plays triggered events into it
// for a DeviceDriver to consume: per event it opens the pipe (the open
// blocks until the reader arms), writes halvesPerEvent half-buffers of
// synthetic data and closes it again, which the reader sees as end of
// cycle. events == 0 keeps feeding until the process exits.
func RunFeeder(path string, cfg SimConfig, events int) {
	_ = os.Remove(path)
	if err := syscall.Mkfifo(path, 0666); err != nil {
		log.Fatalf("[FEED] mkfifo %s: %v", path, err)
	}

	gen, err := NewSim(cfg)
	if err != nil {
		log.Fatalf("[FEED] %v", err)
	}

	log.Printf("[FEED] streaming %d-channel trigger events to %s", cfg.HWChannels, path)

	raw := make([]byte, cfg.ScansPerHalf*cfg.HWChannels*2)

	for ev := 0; events == 0 || ev < events; ev++ {
		fd, err := unix.Open(path, unix.O_WRONLY, 0)
		if err != nil {
			log.Printf("[FEED] open: %v, retrying", err)
			time.Sleep(100 * time.Millisecond)
			ev--
			continue
		}

		const maxPipeSize = 1024 * 1024
		_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, maxPipeSize)

		for h := 0; h < cfg.HalvesPerEvent; h++ {
			gen.fill(gen.halves[0])
			for i, s := range gen.halves[0] {
				binary.LittleEndian.PutUint16(raw[i*2:], s)
			}
			if err := writeFull(fd, raw); err != nil {
				log.Printf("[FEED] reader went away mid-event: %v", err)
				break
			}
		}

		unix.Close(fd)
		// Small gap between trigger cycles so the reader can rearm.
		time.Sleep(20 * time.Millisecond)
	}
}

func writeFull(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		p = p[n:]
	}
	return nil
}
