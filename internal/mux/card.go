package mux

import (
	"fmt"
	"slices"
)

const (
	// MaxSlot is the highest slot number the switch mainframe accepts.
	MaxSlot = 5

	// MaxChannel is the highest channel number any card type exposes.
	MaxChannel = 99
)

// Card describes one relay card: the slot it occupies and the channels it
// exposes. Exclusive cards permit only one closed channel at a time, which
// the controller enforces by releasing every relay before closing a new one.
type Card struct {
	Name      string
	Slot      int
	Channels  []int
	Exclusive bool
}

// HasChannel reports whether the card exposes the given channel number.
func (c *Card) HasChannel(channel int) bool {
	return slices.Contains(c.Channels, channel)
}

// Selectors returns the card's channels as an ordered selector list,
// preserving the configured channel order.
func (c *Card) Selectors() []ChannelSelector {
	selectors := make([]ChannelSelector, 0, len(c.Channels))
	for _, channel := range c.Channels {
		selectors = append(selectors, ChannelSelector{Slot: c.Slot, Channel: channel})
	}
	return selectors
}

func (c *Card) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: card has no name", ErrInvalidCard)
	}
	if c.Slot < 1 || c.Slot > MaxSlot {
		return fmt.Errorf("%w: card %s: slot %d out of range 1-%d", ErrInvalidCard, c.Name, c.Slot, MaxSlot)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: card %s has no channels", ErrInvalidCard, c.Name)
	}
	seen := make(map[int]bool, len(c.Channels))
	for _, channel := range c.Channels {
		if channel < 0 || channel > MaxChannel {
			return fmt.Errorf("%w: card %s: channel %d out of range 0-%d", ErrInvalidCard, c.Name, channel, MaxChannel)
		}
		if seen[channel] {
			return fmt.Errorf("%w: card %s: duplicate channel %d", ErrInvalidCard, c.Name, channel)
		}
		seen[channel] = true
	}
	return nil
}

// ChannelSelector addresses one relay as a (slot, channel) pair.
type ChannelSelector struct {
	Slot    int
	Channel int
}

// Spec formats the selector in the device's channel syntax: the slot digit
// followed by the zero-padded channel number ("101" for slot 1 channel 1).
func (s ChannelSelector) Spec() string {
	return fmt.Sprintf("%d%02d", s.Slot, s.Channel)
}

func (s ChannelSelector) String() string {
	return fmt.Sprintf("slot %d channel %d", s.Slot, s.Channel)
}

// CardSet is the immutable set of configured cards.
type CardSet struct {
	cards []Card
}

// NewCardSet validates the cards and returns the set. Slots must be unique;
// channel numbers must be unique within a card and in range.
func NewCardSet(cards []Card) (*CardSet, error) {
	slots := make(map[int]string, len(cards))
	for i := range cards {
		card := &cards[i]
		if err := card.validate(); err != nil {
			return nil, err
		}
		if other, ok := slots[card.Slot]; ok {
			return nil, fmt.Errorf("%w: slot %d used by both %s and %s", ErrDuplicateSlot, card.Slot, other, card.Name)
		}
		slots[card.Slot] = card.Name
	}
	return &CardSet{cards: cards}, nil
}

// Cards returns the configured cards in declaration order.
func (cs *CardSet) Cards() []Card {
	return cs.cards
}

// ByName looks up a card by its configured name.
func (cs *CardSet) ByName(name string) (*Card, error) {
	for i := range cs.cards {
		if cs.cards[i].Name == name {
			return &cs.cards[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCard, name)
}

// BySlot looks up the card occupying a slot.
func (cs *CardSet) BySlot(slot int) (*Card, error) {
	for i := range cs.cards {
		if cs.cards[i].Slot == slot {
			return &cs.cards[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no card in slot %d", ErrUnknownCard, slot)
}

// Validate checks a selector against the card set and returns the card it
// belongs to.
func (cs *CardSet) Validate(sel ChannelSelector) (*Card, error) {
	card, err := cs.BySlot(sel.Slot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, sel)
	}
	if !card.HasChannel(sel.Channel) {
		return nil, fmt.Errorf("%w: card %s has no channel %d", ErrInvalidChannel, card.Name, sel.Channel)
	}
	return card, nil
}
