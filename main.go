package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/rhamaa/RadarLPDP/pkg/batch"
)

const (
	codeVersion = "Code trigger V.3"
	authorName  = "Raihan Muhammad"

	liveFileName = "live_acquisition_ui.bin"
	fftFileName  = "live_fft.bin"
)

// sizeFlag custom type to handle units like KB, MB, GB
type sizeFlag int

func (s *sizeFlag) String() string {
	return fmt.Sprintf("%d", *s)
}

func (s *sizeFlag) Set(value string) error {
	value = strings.TrimSpace(strings.ToUpper(value))
	multiplier := 1

	if strings.HasSuffix(value, "GB") {
		multiplier = 1024 * 1024 * 1024
		value = strings.TrimSuffix(value, "GB")
	} else if strings.HasSuffix(value, "MB") {
		multiplier = 1024 * 1024
		value = strings.TrimSuffix(value, "MB")
	} else if strings.HasSuffix(value, "KB") {
		multiplier = 1024
		value = strings.TrimSuffix(value, "KB")
	} else if strings.HasSuffix(value, "B") {
		value = strings.TrimSuffix(value, "B")
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid size format: %s", value)
	}

	*s = sizeFlag(val * multiplier)
	return nil
}

// channelListFlag parses comma-separated hardware channel indices, e.g. "1,3".
type channelListFlag []int

func (c *channelListFlag) String() string {
	parts := make([]string, len(*c))
	for i, ch := range *c {
		parts[i] = strconv.Itoa(ch)
	}
	return strings.Join(parts, ",")
}

func (c *channelListFlag) Set(value string) error {
	var out []int
	for _, part := range strings.Split(value, ",") {
		ch, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid channel list %q: %v", value, err)
		}
		out = append(out, ch)
	}
	*c = out
	return nil
}

func main() {
	device := flag.String("d", "/dev/xdma0_c2h_0", "acquisition device path")
	isSim := flag.Bool("sim", false, "simulate the acquisition hardware")

	hwChannels := flag.Int("hw", 4, "hardware channels scanned per frame")
	scans := flag.Int("n", 8192, "scans per DMA half-buffer")
	batchCap := flag.Int("batch", 1000, "events per batch log file")
	events := flag.Int("events", 0, "stop after this many trigger cycles (0 = run until interrupted)")
	withFFT := flag.Bool("fft", false, "write per-event magnitude spectra (needs exactly 2 selected channels)")

	logDir := flag.String("log", "log", "directory for batch log files")
	liveDir := flag.String("live", "live", "directory for the live snapshot")

	selection := channelListFlag{1, 3}
	flag.Var(&selection, "sel", "hardware channels to keep, in output order (e.g. 1,3)")

	var maxEvent sizeFlag // 0 = unbounded
	flag.Var(&maxEvent, "max-event", "per-event memory cap (e.g. 256MB, 0 = unbounded)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  Hardware:  go run . -d /dev/xdma0_c2h_0 [options]")
		fmt.Fprintln(os.Stderr, "  Sim Mode:  go run . -sim [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg := SessionConfig{
		HWChannels:    *hwChannels,
		Selection:     selection,
		ScansPerHalf:  *scans,
		BatchCapacity: *batchCap,
		MaxEventBytes: int(maxEvent),
		EventLimit:    *events,
		LogDir:        *logDir,
		LiveDir:       *liveDir,
		LiveName:      liveFileName,
		CodeVersion:   codeVersion,
		Author:        authorName,
	}
	if *withFFT {
		cfg.SpectralOut = fftFileName
	}

	for _, dir := range []string{*logDir, *liveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("cannot create directory %s: %v", dir, err)
		}
	}

	drv, err := buildDriver(*device, *isSim, cfg)
	if err != nil {
		log.Fatalf("driver setup failed: %v", err)
	}

	sess, err := NewSession(drv, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("acquiring: keeping %s of %d scanned channels, %d scans/half, batch of %d events",
		batch.ChannelNames(cfg.Selection), cfg.HWChannels, cfg.ScansPerHalf, cfg.BatchCapacity)
	log.Printf("live snapshots in %s, batch logs in %s. Ctrl+C to stop.", *liveDir, *logDir)

	if err := sess.Run(ctx); err != nil {
		log.Fatalf("acquisition failed: %v", err)
	}
	log.Println("acquisition finished")
}
