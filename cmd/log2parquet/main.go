// log2parquet converts a batch acquisition log into a parquet file for
// offline analysis. The log's text header travels along as parquet
// key/value metadata; the two saved channels become one int32 column each.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"

	"github.com/rhamaa/RadarLPDP/pkg/batch"
)

// ScanRow is one scan of the two saved channels. Which hardware channel
// each column holds is recorded in the saved_channels metadata.
type ScanRow struct {
	Event int32 `parquet:"event"`
	ChA   int32 `parquet:"ch_a"`
	ChB   int32 `parquet:"ch_b"`
}

func main() {
	output := flag.String("o", "", "output filename (default: input with .parquet suffix)")
	eventScans := flag.Int("event-scans", 0, "scans per event, used to number events (0 = leave event at 0)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <batch_log.bin>\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := flag.Arg(0)
	if *output == "" {
		*output = strings.TrimSuffix(input, ".bin") + ".parquet"
	}

	in, err := os.Open(input)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer in.Close()

	r := bufio.NewReader(in)
	h, err := batch.ParseHeader(r)
	if err != nil {
		log.Fatalf("parse header: %v", err)
	}
	if len(h.SavedChannels) != 2 {
		log.Fatalf("log holds %d channels, only 2-channel logs are supported", len(h.SavedChannels))
	}

	out, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}

	w := parquet.NewGenericWriter[ScanRow](out,
		parquet.KeyValueMetadata("test_date", h.TestDate.Format("2006-01-02 15:04:05")),
		parquet.KeyValueMetadata("code_version", h.CodeVersion),
		parquet.KeyValueMetadata("author", h.Author),
		parquet.KeyValueMetadata("event_count", strconv.Itoa(h.EventCount)),
		parquet.KeyValueMetadata("saved_channels", strings.Join(h.SavedChannels, ",")),
		parquet.KeyValueMetadata("interleave_order", strings.Join(h.InterleaveOrder, ",")),
	)

	scans, err := convert(w, r, *eventScans)
	if err != nil {
		log.Fatalf("convert: %v", err)
	}
	if err := w.Close(); err != nil {
		log.Fatalf("close parquet writer: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("close output: %v", err)
	}

	log.Printf("wrote %d scans (%d events declared) to %s", scans, h.EventCount, *output)
}

// convert streams the payload area into parquet rows. A scan is two
// little-endian uint16 samples, one per saved channel, in interleave order.
func convert(w *parquet.GenericWriter[ScanRow], r io.Reader, eventScans int) (int, error) {
	const scanBytes = 4
	const rowsPerWrite = 8192

	buf := make([]byte, rowsPerWrite*scanBytes)
	rows := make([]ScanRow, 0, rowsPerWrite)
	total := 0

	for {
		n, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			if n%scanBytes != 0 {
				return total, fmt.Errorf("payload ends mid-scan (%d trailing bytes)", n%scanBytes)
			}
		} else if err != nil {
			return total, err
		}

		rows = rows[:0]
		for off := 0; off+scanBytes <= n; off += scanBytes {
			row := ScanRow{
				ChA: int32(binary.LittleEndian.Uint16(buf[off:])),
				ChB: int32(binary.LittleEndian.Uint16(buf[off+2:])),
			}
			if eventScans > 0 {
				row.Event = int32(total / eventScans)
			}
			rows = append(rows, row)
			total++
		}
		if _, err := w.Write(rows); err != nil {
			return total, err
		}

		if n < len(buf) {
			break
		}
	}
	return total, nil
}
