package sweep

import (
	"log"
	"time"
)

// Record is one acquired sample. Records are immutable once produced:
// sinks append them and never rewrite them.
type Record struct {
	Timestamp time.Time
	Label     string
	Card      string
	Channel   int
	Sample    int
	Value     float64
	Function  string
}

// Sink receives records as they are acquired. One sink instance serves one
// run; sinks are not shared between runs.
type Sink interface {
	Append(Record) error
}

// MultiSink fans every record out to all member sinks.
type MultiSink []Sink

func (m MultiSink) Append(r Record) error {
	for _, sink := range m {
		if err := sink.Append(r); err != nil {
			return err
		}
	}
	return nil
}

// BestEffort wraps a sink whose failures are logged instead of failing the
// run. Used for observability sinks that must never stall an acquisition.
type BestEffort struct {
	Sink Sink
}

func (b BestEffort) Append(r Record) error {
	if err := b.Sink.Append(r); err != nil {
		log.Printf("dropping record for %s channel %d: %v", r.Card, r.Channel, err)
	}
	return nil
}
