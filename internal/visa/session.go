// Package visa provides command/response sessions to network-attached
// instruments addressed by VISA-style resource strings. Instruments behind
// a Prologix-style GPIB-LAN controller are reached through the controller's
// TCP command port; socket instruments are reached directly.
package visa

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultTerminator = "\n"
)

// Session is the command/response contract device layers depend on. It is
// an interface so tests can substitute a fake instrument.
type Session interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}

// Options configures a session at open time. Values are fixed for the
// lifetime of the session.
type Options struct {
	Timeout    time.Duration
	Terminator string
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Terminator == "" {
		out.Terminator = DefaultTerminator
	}
	return out
}

// TCPSession is a Session over a TCP connection.
type TCPSession struct {
	resource   string
	conn       net.Conn
	reader     *bufio.Reader
	timeout    time.Duration
	terminator string
	closed     bool
}

// Open establishes a session to the named resource. For a GPIBResource the
// controller is configured (addressing, auto read-after-write, EOI, read
// timeout) before Open returns, so the first instrument command already
// reaches the right device.
//
// The caller owns exactly one instrument per session and must call Close on
// every exit path. Nothing here arbitrates concurrent access to the same
// physical instrument; single-writer access is an operational requirement.
func Open(resource string, opts Options) (*TCPSession, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()

	conn, err := net.DialTimeout("tcp", res.Addr(), opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, res.Addr(), err)
	}

	s := &TCPSession{
		resource:   resource,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		timeout:    opts.Timeout,
		terminator: opts.Terminator,
	}

	if res.Kind == GPIBResource {
		if err := s.setupGPIBController(res); err != nil {
			s.Close() //nolint:errcheck
			return nil, fmt.Errorf("%w: GPIB controller setup: %v", ErrConnection, err)
		}
	}

	return s, nil
}

// setupGPIBController issues the Prologix "++" controller commands that
// bind the session to one GPIB primary address.
func (s *TCPSession) setupGPIBController(res *Resource) error {
	setup := []string{
		"++mode 1",
		fmt.Sprintf("++addr %d", res.GPIBAddress),
		"++auto 1",
		"++eoi 1",
		fmt.Sprintf("++read_tmo_ms %d", s.timeout.Milliseconds()),
	}
	for _, cmd := range setup {
		if err := s.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Resource returns the resource string the session was opened with.
func (s *TCPSession) Resource() string {
	return s.resource
}

// Write sends a command with no response expected.
func (s *TCPSession) Write(cmd string) error {
	if s.closed {
		return fmt.Errorf("%w: %s", ErrClosed, s.resource)
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := s.conn.Write([]byte(cmd + s.terminator)); err != nil {
		return fmt.Errorf("%w: write %q: %v", ErrTransport, cmd, err)
	}
	return nil
}

// Query sends a command and waits for one terminated response line.
func (s *TCPSession) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	line, err := s.reader.ReadString(s.terminator[len(s.terminator)-1])
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return "", fmt.Errorf("%w: %q after %s", ErrTimeout, cmd, s.timeout)
		}
		return "", fmt.Errorf("%w: read after %q: %v", ErrTransport, cmd, err)
	}

	line = strings.TrimSuffix(line, s.terminator)
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}

// Close releases the connection. It is idempotent and never returns an
// error after the first call.
func (s *TCPSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
