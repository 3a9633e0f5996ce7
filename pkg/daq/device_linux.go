//go:build linux

package daq

import (
	"encoding/binary"
	"log"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DeviceConfig binds a DeviceDriver to a character device or named pipe
// that delivers raw interleaved little-endian uint16 frames.
type DeviceConfig struct {
	Path         string
	HWChannels   int
	ScansPerHalf int
}

// DeviceDriver adapts a streaming device to the double-buffered Driver
// contract: it assembles device reads into alternating half-buffers. The
// device is opened per cycle on Arm and released on Clear, so a pipe writer
// appearing is what "trigger fired" means.
type DeviceDriver struct {
	cfg       DeviceConfig
	halfBytes int

	fd     int
	open   bool
	raw    []byte // assembly buffer for the half being filled
	filled int

	halves     [2][]uint16
	cur        int
	pendingAck bool
	stopped    bool
	total      uint32
}

// OpenDevice validates the configuration. The device itself is opened
// lazily by Arm.
func OpenDevice(cfg DeviceConfig) (*DeviceDriver, error) {
	if cfg.Path == "" {
		return nil, errors.New("daq: empty device path")
	}
	if cfg.HWChannels <= 0 || cfg.ScansPerHalf <= 0 {
		return nil, errors.Errorf("daq: bad device config %+v", cfg)
	}

	d := &DeviceDriver{
		cfg:       cfg,
		halfBytes: cfg.ScansPerHalf * cfg.HWChannels * 2,
		fd:        -1,
	}
	d.raw = make([]byte, d.halfBytes)
	d.halves[0] = make([]uint16, cfg.ScansPerHalf*cfg.HWChannels)
	d.halves[1] = make([]uint16, cfg.ScansPerHalf*cfg.HWChannels)
	return d, nil
}

func (d *DeviceDriver) Arm() error {
	if d.open {
		d.release()
	}

	fd, err := unix.Open(d.cfg.Path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return errors.Wrapf(err, "daq: open %s", d.cfg.Path)
	}

	// Widen the pipe so the device side never stalls on us mid-half.
	const maxPipeSize = 1024 * 1024
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, maxPipeSize)

	d.fd = fd
	d.open = true
	d.cur = 0
	d.filled = 0
	d.pendingAck = false
	d.stopped = false
	return nil
}

// Triggered reports whether the device has started delivering data for the
// armed cycle.
func (d *DeviceDriver) Triggered() (bool, error) {
	if !d.open {
		return false, errors.New("daq: device not armed")
	}

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 100 /* ms */)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, errors.Wrap(err, "daq: poll")
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&unix.POLLHUP != 0 && fds[0].Revents&unix.POLLIN == 0 {
		// Writer came and went without data; treat as a spurious trigger.
		return false, nil
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

func (d *DeviceDriver) HalfReady() (ready, stopped bool, err error) {
	if d.pendingAck {
		return false, false, ErrOverrun
	}
	if d.stopped {
		return false, true, nil
	}

	for d.filled < d.halfBytes {
		n, err := unix.Read(d.fd, d.raw[d.filled:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				// Not enough data yet. Wait briefly for more so the
				// caller's poll loop does not spin hot, then report
				// not-ready so it can check for cancellation.
				fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
				_, _ = unix.Poll(fds, 10 /* ms */)
				return false, false, nil
			}
			return false, false, errors.Wrap(err, "daq: read")
		}
		if n == 0 {
			// EOF: the device closed the cycle. A partially assembled
			// half is dropped, the hardware never signals ready for it.
			if d.filled > 0 {
				log.Printf("daq: dropping %d bytes of incomplete half-buffer at end of cycle", d.filled)
			}
			d.stopped = true
			return false, true, nil
		}
		d.filled += n
	}

	half := d.halves[d.cur]
	for i := range half {
		half[i] = binary.LittleEndian.Uint16(d.raw[i*2:])
	}
	d.total += uint32(len(half))
	d.filled = 0
	d.pendingAck = true
	return true, false, nil
}

func (d *DeviceDriver) HalfBuffer(idx int) []uint16 {
	return d.halves[idx]
}

func (d *DeviceDriver) Ack() {
	d.pendingAck = false
	d.cur = 1 - d.cur
}

func (d *DeviceDriver) Clear() (startPos, count uint32) {
	count = d.total
	d.total = 0
	d.release()
	return 0, count
}

func (d *DeviceDriver) Close() error {
	d.release()
	return nil
}

func (d *DeviceDriver) release() {
	if d.open {
		unix.Close(d.fd)
		d.fd = -1
		d.open = false
	}
	d.filled = 0
	d.pendingAck = false
}
