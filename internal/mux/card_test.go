package mux

import (
	"errors"
	"testing"
)

func testCards() []Card {
	return []Card{
		{Name: "voltage_output", Slot: 1, Channels: []int{1, 2, 3, 4}, Exclusive: true},
		{Name: "thermistors", Slot: 2, Channels: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, Exclusive: true},
	}
}

func TestNewCardSet(t *testing.T) {
	tests := []struct {
		name    string
		cards   []Card
		wantErr error
	}{
		{
			name:  "valid set",
			cards: testCards(),
		},
		{
			name:    "missing name",
			cards:   []Card{{Slot: 1, Channels: []int{1}}},
			wantErr: ErrInvalidCard,
		},
		{
			name:    "slot out of range",
			cards:   []Card{{Name: "x", Slot: 6, Channels: []int{1}}},
			wantErr: ErrInvalidCard,
		},
		{
			name:    "slot zero",
			cards:   []Card{{Name: "x", Slot: 0, Channels: []int{1}}},
			wantErr: ErrInvalidCard,
		},
		{
			name:    "no channels",
			cards:   []Card{{Name: "x", Slot: 1}},
			wantErr: ErrInvalidCard,
		},
		{
			name:    "duplicate channel",
			cards:   []Card{{Name: "x", Slot: 1, Channels: []int{1, 2, 1}}},
			wantErr: ErrInvalidCard,
		},
		{
			name:    "channel out of range",
			cards:   []Card{{Name: "x", Slot: 1, Channels: []int{100}}},
			wantErr: ErrInvalidCard,
		},
		{
			name: "duplicate slot",
			cards: []Card{
				{Name: "a", Slot: 1, Channels: []int{1}},
				{Name: "b", Slot: 1, Channels: []int{2}},
			},
			wantErr: ErrDuplicateSlot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCardSet(tt.cards)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewCardSet() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewCardSet() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCardSetLookup(t *testing.T) {
	cs, err := NewCardSet(testCards())
	if err != nil {
		t.Fatalf("NewCardSet() error: %v", err)
	}

	card, err := cs.ByName("voltage_output")
	if err != nil {
		t.Fatalf("ByName() error: %v", err)
	}
	if card.Slot != 1 {
		t.Errorf("ByName().Slot = %d, want 1", card.Slot)
	}

	if _, err := cs.ByName("nonexistent"); !errors.Is(err, ErrUnknownCard) {
		t.Errorf("ByName(nonexistent) error = %v, want ErrUnknownCard", err)
	}

	card, err = cs.BySlot(2)
	if err != nil {
		t.Fatalf("BySlot() error: %v", err)
	}
	if card.Name != "thermistors" {
		t.Errorf("BySlot(2).Name = %q, want thermistors", card.Name)
	}
}

func TestCardSetValidate(t *testing.T) {
	cs, err := NewCardSet(testCards())
	if err != nil {
		t.Fatalf("NewCardSet() error: %v", err)
	}

	tests := []struct {
		name    string
		sel     ChannelSelector
		wantErr bool
	}{
		{name: "valid selector", sel: ChannelSelector{Slot: 1, Channel: 3}},
		{name: "unknown slot", sel: ChannelSelector{Slot: 9, Channel: 1}, wantErr: true},
		{name: "channel not on card", sel: ChannelSelector{Slot: 1, Channel: 5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cs.Validate(tt.sel)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChannel) {
					t.Errorf("Validate(%v) error = %v, want ErrInvalidChannel", tt.sel, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate(%v) error: %v", tt.sel, err)
			}
		})
	}
}

func TestChannelSelectorSpec(t *testing.T) {
	tests := []struct {
		sel  ChannelSelector
		want string
	}{
		{ChannelSelector{Slot: 1, Channel: 1}, "101"},
		{ChannelSelector{Slot: 2, Channel: 0}, "200"},
		{ChannelSelector{Slot: 3, Channel: 15}, "315"},
		{ChannelSelector{Slot: 5, Channel: 99}, "599"},
	}

	for _, tt := range tests {
		if got := tt.sel.Spec(); got != tt.want {
			t.Errorf("Spec(%+v) = %q, want %q", tt.sel, got, tt.want)
		}
	}
}

func TestCardSelectors(t *testing.T) {
	card := Card{Name: "voltage_output", Slot: 1, Channels: []int{4, 2, 3}}
	selectors := card.Selectors()

	want := []ChannelSelector{{1, 4}, {1, 2}, {1, 3}}
	if len(selectors) != len(want) {
		t.Fatalf("Selectors() returned %d entries, want %d", len(selectors), len(want))
	}
	for i := range want {
		if selectors[i] != want[i] {
			t.Errorf("Selectors()[%d] = %v, want %v (order must match config)", i, selectors[i], want[i])
		}
	}
}
