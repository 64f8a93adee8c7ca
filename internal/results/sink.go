// Package results persists measurement records, one semicolon-delimited
// file per run. Filenames embed the run label and a timestamp so repeated
// runs never overwrite each other.
package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/stabnet/muxsweep/internal/sweep"
)

const (
	filenameStamp = "20060102_150405"
	dateLayout    = "2006-01-02"
	timeLayout    = "15:04:05"
)

var header = []string{"Date", "Time", "Test", "Card", "Channel", "Sample", "Value"}

// CSVSink writes records for one run. It implements sweep.Sink. Records
// are flushed as they arrive; a multi-day run that dies keeps everything
// acquired up to that point.
type CSVSink struct {
	path   string
	file   *os.File
	writer *csv.Writer
	closed bool
}

// NewCSVSink creates the run's record file under dir, creating dir if
// needed.
func NewCSVSink(label string, dir string) (*CSVSink, error) {
	return newCSVSinkAt(label, dir, time.Now())
}

func newCSVSinkAt(label string, dir string, at time.Time) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateSink, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", at.Format(filenameStamp), sanitizeLabel(label)))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateSink, err)
	}

	writer := csv.NewWriter(file)
	writer.Comma = ';'

	sink := &CSVSink{path: path, file: file, writer: writer}
	if err := sink.writeRow(header); err != nil {
		file.Close()    //nolint:errcheck
		os.Remove(path) //nolint:errcheck
		return nil, err
	}

	return sink, nil
}

// sanitizeLabel keeps run labels safe to use in a filename.
func sanitizeLabel(label string) string {
	if label == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, label)
}

// Path returns the record file's location.
func (s *CSVSink) Path() string {
	return s.path
}

// Append writes one record and flushes it to the file.
func (s *CSVSink) Append(r sweep.Record) error {
	if s.closed {
		return fmt.Errorf("%w: %s", ErrSinkClosed, s.path)
	}
	return s.writeRow([]string{
		r.Timestamp.Format(dateLayout),
		r.Timestamp.Format(timeLayout),
		r.Label,
		r.Card,
		strconv.Itoa(r.Channel),
		strconv.Itoa(r.Sample),
		strconv.FormatFloat(r.Value, 'g', -1, 64),
	})
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("%w: %v", ErrAppendRecord, err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrAppendRecord, err)
	}
	return nil
}

// Close flushes and finalizes the file. Idempotent.
func (s *CSVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close() //nolint:errcheck
		return fmt.Errorf("%w: %v", ErrAppendRecord, err)
	}
	return s.file.Close()
}

// ReadRecords parses a record file back into records, mainly for
// verification tooling and tests.
func ReadRecords(path string) ([]sweep.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecordFile, err)
	}
	defer file.Close() //nolint:errcheck

	reader := csv.NewReader(file)
	reader.Comma = ';'

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecordFile, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadRecordFile, path)
	}

	records := make([]sweep.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		record, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRecordFile, i+2, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func parseRow(row []string) (sweep.Record, error) {
	if len(row) != len(header) {
		return sweep.Record{}, fmt.Errorf("expected %d fields, got %d", len(header), len(row))
	}

	timestamp, err := time.ParseInLocation(dateLayout+" "+timeLayout, row[0]+" "+row[1], time.Local)
	if err != nil {
		return sweep.Record{}, err
	}
	channel, err := strconv.Atoi(row[4])
	if err != nil {
		return sweep.Record{}, fmt.Errorf("bad channel %q", row[4])
	}
	sample, err := strconv.Atoi(row[5])
	if err != nil {
		return sweep.Record{}, fmt.Errorf("bad sample %q", row[5])
	}
	value, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return sweep.Record{}, fmt.Errorf("bad value %q", row[6])
	}

	return sweep.Record{
		Timestamp: timestamp,
		Label:     row[2],
		Card:      row[3],
		Channel:   channel,
		Sample:    sample,
		Value:     value,
	}, nil
}
