package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BumpyClock/tasque/store/internal/atomicfile"
)

// eventLogFile is the store-relative path of the append-only event log
// (spec.md §6).
const eventLogFile = "events.jsonl"

// appendEvents durably appends events to the log at path, one JSON object
// per line, per spec.md §4.1's append protocol: append-mode open, a single
// write call per batch ending in a trailing newline, then fsync. A failure
// here must leave no partially observed event for the next reader, which
// AppendFsync's single buffered write call guarantees for any batch that
// reaches the OS in one call.
func appendEvents(path string, events []EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	var buf []byte
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.EventID, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if err := atomicfile.AppendFsync(path, buf, 0o644); err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}

// readEventLogResult carries the outcome of a full log read.
type readEventLogResult struct {
	Events  []EventRecord
	Warning string
}

// readEventLog reads every well-formed line of the log at path. A line
// missing its trailing newline (a partial write interrupted mid-append) is
// treated as absent, per spec.md §4.1, and reported via Warning. A line
// that parses as valid JSON but violates the EventRecord schema is skipped
// with a warning too, per spec.md §4.1's "projection continues with
// remaining events" guarantee. A missing file is treated as an empty log.
func readEventLog(path string) (readEventLogResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return readEventLogResult{}, nil
		}
		return readEventLogResult{}, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var (
		result    readEventLogResult
		sawTrunc  bool
		skipCount int
	)

	// bufio.Scanner's ScanLines returns a final unterminated line as an
	// ordinary token, indistinguishable from a properly terminated one, so
	// a torn append (no trailing newline) would silently parse and project.
	// bufio.Reader.ReadBytes keeps the delimiter in the result, which lets
	// the loop tell the two cases apart directly.
	reader := bufio.NewReaderSize(f, 64*1024)
	for {
		raw, readErr := reader.ReadBytes('\n')
		if len(raw) > 0 {
			terminated := raw[len(raw)-1] == '\n'
			line := raw
			if terminated {
				line = line[:len(line)-1]
			}
			line = bytes.TrimSuffix(line, []byte("\r"))
			switch {
			case !terminated:
				if len(bytes.TrimSpace(line)) > 0 {
					sawTrunc = true
				}
			case len(line) == 0:
				// blank line, nothing to parse
			default:
				var rec EventRecord
				if err := json.Unmarshal(line, &rec); err != nil {
					skipCount++
				} else if rec.EventID == "" || rec.Type == "" {
					skipCount++
				} else {
					result.Events = append(result.Events, rec)
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return result, fmt.Errorf("read event log: %w", readErr)
		}
	}

	var warnings []string
	if sawTrunc {
		warnings = append(warnings, "event log ends with a partial (unterminated) line; it was ignored")
	}
	if skipCount > 0 {
		warnings = append(warnings, fmt.Sprintf("%d event log line(s) failed to parse and were skipped", skipCount))
	}
	if len(warnings) > 0 {
		result.Warning = joinWarnings(warnings)
	}
	return result, nil
}

func joinWarnings(ws []string) string {
	out := ws[0]
	for _, w := range ws[1:] {
		out += "; " + w
	}
	return out
}

// countEvents returns the number of well-formed events already read from
// the log, used by snapshot selection which only needs the count.
func countEvents(events []EventRecord) int64 {
	return int64(len(events))
}

// highestEventID returns the largest numeric event id seen, for seeding a
// fresh eventIDAllocator. Non-numeric ids (an embedder using ULIDs) are
// ignored for this purpose; such an embedder is expected to supply its own
// id allocation, since spec.md §4.1 only requires total order, not a
// particular representation.
func highestEventID(events []EventRecord) int64 {
	var max int64
	for _, e := range events {
		if n, err := strconv.ParseInt(e.EventID, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return max
}
