package dmm

import (
	"errors"
	"fmt"
	"testing"
)

// meterSession answers each query from a scripted list of responses; a
// response of "" simulates a transport failure.
type meterSession struct {
	queries   []string
	responses []string
	next      int
}

func (s *meterSession) Write(cmd string) error { return nil }

func (s *meterSession) Query(cmd string) (string, error) {
	s.queries = append(s.queries, cmd)
	if s.next >= len(s.responses) {
		return "", fmt.Errorf("no response scripted for query %d", s.next)
	}
	resp := s.responses[s.next]
	s.next++
	if resp == "" {
		return "", errors.New("simulated transport failure")
	}
	return resp, nil
}

func (s *meterSession) Close() error { return nil }

func TestClientIdentify(t *testing.T) {
	sess := &meterSession{responses: []string{"FLUKE,8588A,12345,1.0 \r"}}
	client := NewClient(sess)

	id, err := client.Identify()
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if id != "FLUKE,8588A,12345,1.0" {
		t.Errorf("Identify() = %q", id)
	}
}

func TestClientMeasure(t *testing.T) {
	sess := &meterSession{responses: []string{"+1.00000250E+01"}}
	client := NewClient(sess)

	value, err := client.Measure("")
	if err != nil {
		t.Fatalf("Measure() error: %v", err)
	}
	if value != 10.0000250 {
		t.Errorf("Measure() = %v, want 10.0000250", value)
	}
	if sess.queries[0] != "READ?" {
		t.Errorf("query = %q, want READ?", sess.queries[0])
	}
}

func TestClientMeasureExplicitFunction(t *testing.T) {
	sess := &meterSession{responses: []string{"0.99881"}}
	client := NewClient(sess, WithFunction("MEAS:VOLT:DC?"))

	if _, err := client.Measure("MEAS:RES?"); err != nil {
		t.Fatalf("Measure() error: %v", err)
	}
	if sess.queries[0] != "MEAS:RES?" {
		t.Errorf("query = %q: explicit function must win over the default", sess.queries[0])
	}
}

func TestClientMeasureWithDigits(t *testing.T) {
	sess := &meterSession{responses: []string{"1.25"}}
	client := NewClient(sess, WithDigits(8))

	if _, err := client.Measure(""); err != nil {
		t.Fatalf("Measure() error: %v", err)
	}
	if sess.queries[0] != "READ? 8" {
		t.Errorf("query = %q, want READ? 8", sess.queries[0])
	}
}

func TestClientMeasureParseError(t *testing.T) {
	sess := &meterSession{responses: []string{"OVERLOAD"}}
	client := NewClient(sess)

	_, err := client.Measure("")
	if !errors.Is(err, ErrParse) {
		t.Errorf("Measure() error = %v, want ErrParse", err)
	}
}

func TestClientMeasureN(t *testing.T) {
	sess := &meterSession{responses: []string{"1.0", "1.1", "1.2"}}
	client := NewClient(sess)

	values, err := client.MeasureN("", 3)
	if err != nil {
		t.Fatalf("MeasureN() error: %v", err)
	}
	want := []float64{1.0, 1.1, 1.2}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("values[%d] = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestClientMeasureNPartialResults(t *testing.T) {
	// fails on the 3rd reading: exactly 2 values must come back
	sess := &meterSession{responses: []string{"1.0", "1.1", ""}}
	client := NewClient(sess)

	values, err := client.MeasureN("", 5)
	if err == nil {
		t.Fatal("MeasureN() succeeded, want error on sample 3")
	}
	if len(values) != 2 {
		t.Fatalf("MeasureN() returned %d values with error, want 2", len(values))
	}
	if values[0] != 1.0 || values[1] != 1.1 {
		t.Errorf("partial values = %v, want [1.0 1.1]", values)
	}
}
