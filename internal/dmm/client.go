// Package dmm is a client for a network-attached digital multimeter. It
// deliberately issues no arm or trigger commands of its own: the caller
// owns measurement timing, so a mis-sequenced trigger shows up as a visible
// failure instead of a silently stale reading.
package dmm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stabnet/muxsweep/internal/visa"
)

// DefaultFunction is the measurement query used when none is configured.
const DefaultFunction = "READ?"

// Client wraps one session to the multimeter.
type Client struct {
	session  visa.Session
	function string
	digits   int
}

// Option configures a Client.
type Option func(*Client)

// WithFunction sets the default measurement query.
func WithFunction(function string) Option {
	return func(c *Client) {
		if function != "" {
			c.function = function
		}
	}
}

// WithDigits appends a digits-of-resolution argument to every measurement
// query.
func WithDigits(digits int) Option {
	return func(c *Client) {
		c.digits = digits
	}
}

// NewClient binds a session to the meter.
func NewClient(session visa.Session, opts ...Option) *Client {
	c := &Client{session: session, function: DefaultFunction}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identify queries the meter identification string.
func (c *Client) Identify() (string, error) {
	id, err := c.session.Query("*IDN?")
	if err != nil {
		return "", fmt.Errorf("identify meter: %w", err)
	}
	return strings.TrimSpace(id), nil
}

// Function returns the measurement query in effect for an empty function
// argument.
func (c *Client) Function() string {
	return c.function
}

// Measure takes one reading. An empty function uses the configured default.
func (c *Client) Measure(function string) (float64, error) {
	query := function
	if query == "" {
		query = c.function
	}
	if c.digits > 0 {
		query = fmt.Sprintf("%s %d", query, c.digits)
	}

	resp, err := c.session.Query(query)
	if err != nil {
		return 0, fmt.Errorf("measure: %w", err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, resp)
	}
	return value, nil
}

// MeasureN takes count independent readings in sequence. On failure the
// readings taken so far are returned with the error; the caller decides
// whether a partial series is usable.
func (c *Client) MeasureN(function string, count int) ([]float64, error) {
	values := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		value, err := c.Measure(function)
		if err != nil {
			return values, fmt.Errorf("sample %d of %d: %w", i+1, count, err)
		}
		values = append(values, value)
	}
	return values, nil
}

// Close releases the meter session.
func (c *Client) Close() error {
	return c.session.Close()
}
