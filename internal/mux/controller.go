// Package mux drives a GPIB relay multiplexer mainframe through a visa
// session. The controller validates every selector against the configured
// card set before any wire traffic and enforces single-active-channel
// semantics for exclusive cards.
package mux

import (
	"fmt"
	"log"
	"strings"

	"github.com/stabnet/muxsweep/internal/visa"
)

// Device command vocabulary. CLOSE connects a relay, OPEN disconnects it,
// CLOSE ALL releases every relay in the mainframe.
const (
	cmdIdentify  = "*IDN?"
	cmdReset     = "RESET"
	cmdCloseAll  = "CLOSE ALL"
	cmdOpenFmt   = "OPEN %s"
	cmdCloseFmt  = "CLOSE %s"
	cmdScanFmt   = "SCAN %s"
	cmdListState = "LIST?"
)

// Controller owns one session to the multiplexer and the immutable card
// set. It never caches relay state: after any error the device is the only
// authority, so callers re-establish a baseline with Reset or CloseAll
// instead of trusting memory.
type Controller struct {
	session visa.Session
	cards   *CardSet
}

// NewController binds a session to a card set. The caller should issue
// Reset before the first switching command so the device starts from a
// known all-open state.
func NewController(session visa.Session, cards *CardSet) *Controller {
	return &Controller{session: session, cards: cards}
}

// Cards returns the configured card set.
func (c *Controller) Cards() *CardSet {
	return c.cards
}

// Identify queries the device identification string.
func (c *Controller) Identify() (string, error) {
	id, err := c.session.Query(cmdIdentify)
	if err != nil {
		return "", fmt.Errorf("identify multiplexer: %w", err)
	}
	return strings.TrimSpace(id), nil
}

// Reset issues the device reset, leaving every relay open. This must be the
// first command after opening a fresh session.
func (c *Controller) Reset() error {
	if err := c.session.Write(cmdReset); err != nil {
		return fmt.Errorf("reset multiplexer: %w", err)
	}
	return nil
}

// OpenChannel disconnects one relay. Invalid selectors fail before any
// device command is issued.
func (c *Controller) OpenChannel(sel ChannelSelector) error {
	if _, err := c.cards.Validate(sel); err != nil {
		return err
	}
	if err := c.session.Write(fmt.Sprintf(cmdOpenFmt, sel.Spec())); err != nil {
		return fmt.Errorf("open %s: %w", sel, err)
	}
	return nil
}

// CloseChannel connects one relay. On an exclusive card every relay is
// released first so two channels are never closed at once; the release must
// precede the close, not follow it.
func (c *Controller) CloseChannel(sel ChannelSelector) error {
	card, err := c.cards.Validate(sel)
	if err != nil {
		return err
	}
	if card.Exclusive {
		if err := c.CloseAll(); err != nil {
			return fmt.Errorf("release before closing %s: %w", sel, err)
		}
	}
	if err := c.session.Write(fmt.Sprintf(cmdCloseFmt, sel.Spec())); err != nil {
		return fmt.Errorf("close %s: %w", sel, err)
	}
	return nil
}

// CloseAll releases every relay in the mainframe.
func (c *Controller) CloseAll() error {
	if err := c.session.Write(cmdCloseAll); err != nil {
		return fmt.Errorf("release all relays: %w", err)
	}
	return nil
}

// Scan closes each selector in order, one at a time. Settle timing between
// switches belongs to the caller; order is caller-significant and is never
// changed here.
func (c *Controller) Scan(selectors []ChannelSelector) error {
	for _, sel := range selectors {
		if err := c.CloseChannel(sel); err != nil {
			return err
		}
	}
	return nil
}

// ProgramScan programs the device-side scan list instead of stepping the
// relays from the host.
func (c *Controller) ProgramScan(selectors []ChannelSelector) error {
	specs := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if _, err := c.cards.Validate(sel); err != nil {
			return err
		}
		specs = append(specs, sel.Spec())
	}
	if err := c.session.Write(fmt.Sprintf(cmdScanFmt, strings.Join(specs, ","))); err != nil {
		return fmt.Errorf("program scan list: %w", err)
	}
	return nil
}

// RelayState queries the device's view of its relay states.
func (c *Controller) RelayState() (string, error) {
	state, err := c.session.Query(cmdListState)
	if err != nil {
		return "", fmt.Errorf("query relay state: %w", err)
	}
	return strings.TrimSpace(state), nil
}

// Close releases every relay and then the session. The relay release is
// best effort: its failure is logged but never prevents the session from
// being closed.
func (c *Controller) Close() error {
	if err := c.CloseAll(); err != nil {
		log.Printf("failed to release relays during teardown: %v", err)
	}
	return c.session.Close()
}
