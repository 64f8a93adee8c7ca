package mux

import (
	"errors"
	"fmt"
	"testing"
)

// scriptSession records commands and answers queries from a canned table.
// Writes fail once failAfter commands have been accepted (when failAfter
// is >= 0).
type scriptSession struct {
	commands  []string
	responses map[string]string
	failAfter int
	closed    bool
}

func newScriptSession() *scriptSession {
	return &scriptSession{failAfter: -1, responses: make(map[string]string)}
}

func (s *scriptSession) Write(cmd string) error {
	if s.failAfter >= 0 && len(s.commands) >= s.failAfter {
		return fmt.Errorf("transport failure after %d commands", s.failAfter)
	}
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *scriptSession) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}
	if resp, ok := s.responses[cmd]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no response scripted for %q", cmd)
}

func (s *scriptSession) Close() error {
	s.closed = true
	return nil
}

func newTestController(t *testing.T) (*Controller, *scriptSession) {
	t.Helper()
	cs, err := NewCardSet(testCards())
	if err != nil {
		t.Fatalf("NewCardSet() error: %v", err)
	}
	sess := newScriptSession()
	return NewController(sess, cs), sess
}

func assertCommands(t *testing.T, sess *scriptSession, want []string) {
	t.Helper()
	if len(sess.commands) != len(want) {
		t.Fatalf("device received %v, want %v", sess.commands, want)
	}
	for i := range want {
		if sess.commands[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, sess.commands[i], want[i])
		}
	}
}

func TestControllerIdentify(t *testing.T) {
	ctrl, sess := newTestController(t)
	sess.responses["*IDN?"] = "HEWLETT-PACKARD,3488A,0,REV 1.0 \r"

	id, err := ctrl.Identify()
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if id != "HEWLETT-PACKARD,3488A,0,REV 1.0" {
		t.Errorf("Identify() = %q", id)
	}
}

func TestControllerReset(t *testing.T) {
	ctrl, sess := newTestController(t)

	if err := ctrl.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	assertCommands(t, sess, []string{"RESET"})
}

func TestControllerOpenChannel(t *testing.T) {
	ctrl, sess := newTestController(t)

	if err := ctrl.OpenChannel(ChannelSelector{Slot: 1, Channel: 2}); err != nil {
		t.Fatalf("OpenChannel() error: %v", err)
	}
	assertCommands(t, sess, []string{"OPEN 102"})
}

func TestControllerCloseChannelExclusive(t *testing.T) {
	ctrl, sess := newTestController(t)

	// exclusive card: every relay is released before the target closes
	if err := ctrl.CloseChannel(ChannelSelector{Slot: 1, Channel: 3}); err != nil {
		t.Fatalf("CloseChannel() error: %v", err)
	}
	assertCommands(t, sess, []string{"CLOSE ALL", "CLOSE 103"})
}

func TestControllerCloseChannelNonExclusive(t *testing.T) {
	cs, err := NewCardSet([]Card{
		{Name: "matrix", Slot: 3, Channels: []int{1, 2}, Exclusive: false},
	})
	if err != nil {
		t.Fatalf("NewCardSet() error: %v", err)
	}
	sess := newScriptSession()
	ctrl := NewController(sess, cs)

	if err := ctrl.CloseChannel(ChannelSelector{Slot: 3, Channel: 2}); err != nil {
		t.Fatalf("CloseChannel() error: %v", err)
	}
	assertCommands(t, sess, []string{"CLOSE 302"})
}

func TestControllerInvalidSelectorIssuesNoCommands(t *testing.T) {
	ctrl, sess := newTestController(t)

	tests := []ChannelSelector{
		{Slot: 9, Channel: 1},
		{Slot: 1, Channel: 42},
	}

	for _, sel := range tests {
		if err := ctrl.CloseChannel(sel); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("CloseChannel(%v) error = %v, want ErrInvalidChannel", sel, err)
		}
		if err := ctrl.OpenChannel(sel); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("OpenChannel(%v) error = %v, want ErrInvalidChannel", sel, err)
		}
	}

	if len(sess.commands) != 0 {
		t.Errorf("invalid selectors reached the device: %v", sess.commands)
	}
}

func TestControllerScanOrder(t *testing.T) {
	ctrl, sess := newTestController(t)

	selectors := []ChannelSelector{
		{Slot: 1, Channel: 2},
		{Slot: 1, Channel: 1},
		{Slot: 1, Channel: 4},
	}
	if err := ctrl.Scan(selectors); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	assertCommands(t, sess, []string{
		"CLOSE ALL", "CLOSE 102",
		"CLOSE ALL", "CLOSE 101",
		"CLOSE ALL", "CLOSE 104",
	})
}

func TestControllerScanAbortsOnTransportFailure(t *testing.T) {
	ctrl, sess := newTestController(t)
	sess.failAfter = 3 // fails during the second selector

	selectors := []ChannelSelector{
		{Slot: 1, Channel: 1},
		{Slot: 1, Channel: 2},
		{Slot: 1, Channel: 3},
	}
	if err := ctrl.Scan(selectors); err == nil {
		t.Fatal("Scan() succeeded, want transport error")
	}

	// only the first selector completed
	assertCommands(t, sess, []string{"CLOSE ALL", "CLOSE 101", "CLOSE ALL"})
}

func TestControllerProgramScan(t *testing.T) {
	ctrl, sess := newTestController(t)

	selectors := []ChannelSelector{
		{Slot: 1, Channel: 1},
		{Slot: 1, Channel: 2},
		{Slot: 1, Channel: 3},
	}
	if err := ctrl.ProgramScan(selectors); err != nil {
		t.Fatalf("ProgramScan() error: %v", err)
	}
	assertCommands(t, sess, []string{"SCAN 101,102,103"})
}

func TestControllerProgramScanValidatesBeforeWriting(t *testing.T) {
	ctrl, sess := newTestController(t)

	selectors := []ChannelSelector{
		{Slot: 1, Channel: 1},
		{Slot: 9, Channel: 1},
	}
	if err := ctrl.ProgramScan(selectors); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("ProgramScan() error = %v, want ErrInvalidChannel", err)
	}
	if len(sess.commands) != 0 {
		t.Errorf("partially valid scan list reached the device: %v", sess.commands)
	}
}

func TestControllerClose(t *testing.T) {
	ctrl, sess := newTestController(t)

	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	assertCommands(t, sess, []string{"CLOSE ALL"})
	if !sess.closed {
		t.Error("Close() did not close the session")
	}
}

func TestControllerCloseReleasesSessionDespiteRelayFailure(t *testing.T) {
	ctrl, sess := newTestController(t)
	sess.failAfter = 0

	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !sess.closed {
		t.Error("Close() did not close the session after relay release failed")
	}
}
