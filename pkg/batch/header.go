package batch

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Header is the parsed form of a batch log file's text preamble.
type Header struct {
	TestDate        time.Time
	CodeVersion     string
	Author          string
	EventCount      int
	SavedChannels   []string
	InterleaveOrder []string
}

// ParseHeader reads KEY:VALUE lines from r up to and including the blank
// separator line, leaving r positioned at the first payload byte.
func ParseHeader(r *bufio.Reader) (*Header, error) {
	h := &Header{}
	sawCount := false

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "batch: truncated header")
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, errors.Errorf("batch: malformed header line %q", line)
		}

		switch key {
		case "TEST_DATE":
			ts, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local)
			if err != nil {
				return nil, errors.Wrap(err, "batch: bad TEST_DATE")
			}
			h.TestDate = ts
		case "CODE_VERSION":
			h.CodeVersion = value
		case "AUTHOR":
			h.Author = value
		case "BATCH_EVENT_COUNT":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrap(err, "batch: bad BATCH_EVENT_COUNT")
			}
			h.EventCount = n
			sawCount = true
		case "SAVED_CHANNELS":
			h.SavedChannels = strings.Split(value, ",")
		case "INTERLEAVE_ORDER":
			h.InterleaveOrder = strings.Split(value, ",")
		default:
			// Unknown keys are tolerated so newer writers stay readable.
		}
	}

	if !sawCount {
		return nil, errors.New("batch: header missing BATCH_EVENT_COUNT")
	}
	return h, nil
}
