// Package sweep runs measurement acquisitions over a channel plan: switch
// one relay, wait for it to settle, take the configured samples, record
// them, move to the next channel. Execution is strictly sequential; the
// multiplexer is a shared stateful device and every reading must be
// attributable to the channel that was active when it was taken.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stabnet/muxsweep/internal/mux"
)

// Switcher is the multiplexer surface the sequencer needs.
type Switcher interface {
	CloseChannel(sel mux.ChannelSelector) error
	CloseAll() error
}

// Meter takes one reading per call. The sequencer samples one reading at a
// time so every record carries the timestamp of its own read, not the time
// the batch finished.
type Meter interface {
	Measure(function string) (float64, error)
}

// FailurePolicy decides what a channel failure does to the rest of the run.
// The choice is always explicit; a channel is never dropped silently.
type FailurePolicy int

const (
	// AbortRun stops the run on the first channel failure.
	AbortRun FailurePolicy = iota
	// SkipChannel reports the failure and continues with the next channel.
	SkipChannel
)

// Plan declares one acquisition run.
type Plan struct {
	Label     string
	Card      string
	Selectors []mux.ChannelSelector
	Samples   int
	Settle    time.Duration
	Function  string
}

func (p *Plan) validate() error {
	if len(p.Selectors) == 0 {
		return fmt.Errorf("%w: no channels", ErrBadPlan)
	}
	if p.Samples < 1 {
		return fmt.Errorf("%w: samples must be >= 1, got %d", ErrBadPlan, p.Samples)
	}
	if p.Settle < 0 {
		return fmt.Errorf("%w: negative settle time", ErrBadPlan)
	}
	return nil
}

// ChannelFailure records a channel that was skipped.
type ChannelFailure struct {
	Selector mux.ChannelSelector
	Err      error
}

// Summary reports what a run produced.
type Summary struct {
	Records int
	Skipped []ChannelFailure
}

// Sequencer coordinates the switcher and the meter. They never talk to
// each other; all ordering lives here.
type Sequencer struct {
	switcher Switcher
	meter    Meter
	sink     Sink
	policy   FailurePolicy

	// now and sleep are swappable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithFailurePolicy sets what happens when a channel fails mid-run.
func WithFailurePolicy(policy FailurePolicy) SequencerOption {
	return func(s *Sequencer) { s.policy = policy }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) SequencerOption {
	return func(s *Sequencer) { s.now = now }
}

// WithSleep overrides the settle wait.
func WithSleep(sleep func(time.Duration)) SequencerOption {
	return func(s *Sequencer) { s.sleep = sleep }
}

// NewSequencer builds a sequencer writing to sink.
func NewSequencer(switcher Switcher, meter Meter, sink Sink, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		switcher: switcher,
		meter:    meter,
		sink:     sink,
		policy:   AbortRun,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the plan. Whatever happens, every relay is released before
// Run returns; a failure during that release is logged and returned only
// when it would not mask an earlier error. Cancellation is honored between
// channels, never mid-switch or mid-sample.
func (s *Sequencer) Run(ctx context.Context, plan Plan) (summary *Summary, err error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}

	summary = &Summary{}

	defer func() {
		if cleanupErr := s.switcher.CloseAll(); cleanupErr != nil {
			log.Printf("failed to release relays after run %q: %v", plan.Label, cleanupErr)
			if err == nil {
				err = cleanupErr
			}
		}
	}()

	for _, sel := range plan.Selectors {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, fmt.Errorf("%w: %v", ErrRunCanceled, ctxErr)
		}

		if chErr := s.runChannel(plan, sel, summary); chErr != nil {
			if s.policy == SkipChannel && !errors.Is(chErr, ErrSinkFailure) {
				log.Printf("run %q: skipping %s: %v", plan.Label, sel, chErr)
				summary.Skipped = append(summary.Skipped, ChannelFailure{Selector: sel, Err: chErr})
				continue
			}
			return summary, chErr
		}
	}

	return summary, nil
}

// runChannel drives one selector through switch, settle, and sampling.
func (s *Sequencer) runChannel(plan Plan, sel mux.ChannelSelector, summary *Summary) error {
	if err := s.switcher.CloseChannel(sel); err != nil {
		return fmt.Errorf("switch to %s: %w", sel, err)
	}

	if plan.Settle > 0 {
		s.sleep(plan.Settle)
	}

	for sample := 0; sample < plan.Samples; sample++ {
		value, err := s.meter.Measure(plan.Function)
		if err != nil {
			return fmt.Errorf("%s sample %d: %w", sel, sample, err)
		}
		readAt := s.now()

		record := Record{
			Timestamp: readAt,
			Label:     plan.Label,
			Card:      plan.Card,
			Channel:   sel.Channel,
			Sample:    sample,
			Value:     value,
			Function:  plan.Function,
		}
		if err := s.sink.Append(record); err != nil {
			// losing data is never survivable, regardless of policy
			return fmt.Errorf("%w: %s sample %d: %v", ErrSinkFailure, sel, sample, err)
		}
		summary.Records++
	}

	return nil
}
