package scanner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"kasirinaja/checkout/internal/domain"
)

var physicalDigits = map[string]byte{
	"Digit0": '0', "Digit1": '1', "Digit2": '2', "Digit3": '3', "Digit4": '4',
	"Digit5": '5', "Digit6": '6', "Digit7": '7', "Digit8": '8', "Digit9": '9',
	"Numpad0": '0', "Numpad1": '1', "Numpad2": '2', "Numpad3": '3', "Numpad4": '4',
	"Numpad5": '5', "Numpad6": '6', "Numpad7": '7', "Numpad8": '8', "Numpad9": '9',
}

// azertyDigits maps the unshifted characters of the AZERTY number row back to
// the digit printed on the same key. A scanner configured for QWERTY that is
// plugged into an AZERTY host produces these instead of digits.
var azertyDigits = map[rune]byte{
	'&':  '1',
	'é':  '2',
	'"':  '3',
	'\'': '4',
	'(':  '5',
	'-':  '6',
	'è':  '7',
	'_':  '8',
	'ç':  '9',
	'à':  '0',
	')':  '0',
}

var terminatorKeys = map[string]struct{}{
	"Enter":       {},
	"NumpadEnter": {},
	"Tab":         {},
}

// Modifier presses carry no character and are interleaved by scanners that
// emulate the shift state, so they neither extend nor break a burst.
var modifierKeys = map[string]struct{}{
	"Shift": {}, "ShiftLeft": {}, "ShiftRight": {}, "CapsLock": {},
	"Alt": {}, "AltLeft": {}, "AltRight": {}, "AltGraph": {},
	"Control": {}, "ControlLeft": {}, "ControlRight": {},
	"Meta": {}, "MetaLeft": {}, "MetaRight": {},
}

func isTerminator(key string) bool {
	_, ok := terminatorKeys[key]
	return ok
}

func isModifier(key string) bool {
	_, ok := modifierKeys[key]
	return ok
}

// DecodeKey resolves a key event to a single digit. The physical key code
// wins; the produced character is only consulted when the code is not a
// digit key.
func DecodeKey(ev domain.KeyEvent) (byte, bool) {
	if d, ok := physicalDigits[ev.LogicalKey]; ok {
		return d, true
	}

	char := ev.ShiftedChar
	if char == "" && utf8.RuneCountInString(ev.LogicalKey) == 1 {
		char = ev.LogicalKey
	}
	if char == "" {
		return 0, false
	}

	folded := norm.NFKC.String(char)
	if utf8.RuneCountInString(folded) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(folded)
	return decodeRune(r)
}

// NormalizeBarcode keeps only characters that resolve to digits. It is
// idempotent: a digits-only input is returned unchanged.
func NormalizeBarcode(raw string) string {
	folded := norm.NFKC.String(raw)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if d, ok := decodeRune(r); ok {
			b.WriteByte(d)
		}
	}
	return b.String()
}

func decodeRune(r rune) (byte, bool) {
	if r >= '0' && r <= '9' {
		return byte(r), true
	}
	d, ok := azertyDigits[r]
	return d, ok
}
