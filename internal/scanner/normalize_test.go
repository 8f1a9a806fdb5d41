package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kasirinaja/checkout/internal/domain"
)

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		name   string
		ev     domain.KeyEvent
		want   byte
		wantOK bool
	}{
		{"top row digit", domain.KeyEvent{LogicalKey: "Digit4"}, '4', true},
		{"numpad digit", domain.KeyEvent{LogicalKey: "Numpad7"}, '7', true},
		{"physical code wins over produced char", domain.KeyEvent{LogicalKey: "Digit1", ShiftedChar: "&"}, '1', true},
		{"azerty ampersand", domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: "&"}, '1', true},
		{"azerty e acute", domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: "é"}, '2', true},
		{"azerty decomposed e acute", domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: "e\u0301"}, '2', true},
		{"azerty quote", domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: "\""}, '3', true},
		{"azerty a grave", domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: "à"}, '0', true},
		{"azerty close paren", domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: ")"}, '0', true},
		{"single rune logical key", domain.KeyEvent{LogicalKey: "9"}, '9', true},
		{"fullwidth digit", domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: "５"}, '5', true},
		{"letter", domain.KeyEvent{LogicalKey: "KeyA", ShiftedChar: "a"}, 0, false},
		{"terminator", domain.KeyEvent{LogicalKey: "Enter"}, 0, false},
		{"empty", domain.KeyEvent{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeKey(tt.ev)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeBarcode(t *testing.T) {
	tests := map[string]string{
		"3017620422003": "3017620422003",
		"&é\"'(-è_çà":    "1234567890",
		" 30-17 ":        "30617",
		"abc":            "",
		"":               "",
		"１２３":            "123",
	}

	for raw, want := range tests {
		got := NormalizeBarcode(raw)
		assert.Equal(t, want, got, "raw %q", raw)
		assert.Equal(t, got, NormalizeBarcode(got), "normalizing %q twice changed it", raw)
	}
}
