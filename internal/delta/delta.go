package delta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

/*
LEARNING: EDIT DELTA WIRE FORMAT

One message type travels in both directions:

	{"changes": [ {startLine, startCol, endLine, endCol, newText}, ... ]}

Lines and columns are 1-based, columns count characters (runes).
Operations are applied in array order, each one against the text as the
previous operation left it. There is no sequence number: ordering is the
arrival order at the relay.

Older clients sent the bare array without the envelope. Receivers still
accept it, but nothing in this module ever emits it.
*/

var (
	// ErrMalformed is returned for payloads that are not an Edit Delta.
	ErrMalformed = errors.New("malformed delta")
	// ErrMissingChanges is returned when the envelope has no "changes" array.
	ErrMissingChanges = errors.New("delta has no changes")
	// ErrOutOfRange is returned when an operation addresses a position outside the text.
	ErrOutOfRange = errors.New("position out of range")
)

// Operation replaces the text between start and end with NewText.
type Operation struct {
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
	NewText   string `json:"newText"`

	// ForceMoveMarkers anchors cursors after inserted text in the editor.
	ForceMoveMarkers bool `json:"forceMoveMarkers,omitempty"`
}

// Delta is one batch of operations produced by a single buffer mutation.
type Delta struct {
	Changes []Operation `json:"changes"`
}

// Form tells which shape a received payload had.
type Form int

const (
	FormCanonical Form = iota // {"changes": [...]}
	FormLegacy                // bare [...] array
)

func (f Form) String() string {
	switch f {
	case FormCanonical:
		return "canonical"
	case FormLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Form(%d)", int(f))
	}
}

// Validate checks that positions are 1-based and start does not come after end.
func (op Operation) Validate() error {
	if op.StartLine < 1 || op.StartCol < 1 || op.EndLine < 1 || op.EndCol < 1 {
		return fmt.Errorf("%w: positions are 1-based, got %d:%d-%d:%d",
			ErrMalformed, op.StartLine, op.StartCol, op.EndLine, op.EndCol)
	}
	if op.EndLine < op.StartLine || (op.EndLine == op.StartLine && op.EndCol < op.StartCol) {
		return fmt.Errorf("%w: range end %d:%d precedes start %d:%d",
			ErrMalformed, op.EndLine, op.EndCol, op.StartLine, op.StartCol)
	}
	return nil
}

// Validate checks every operation of the delta.
func (d Delta) Validate() error {
	for i, op := range d.Changes {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	return nil
}

// Parse decodes a received message. The canonical object form and the legacy
// bare array are accepted; anything else (including a snapshot string) is rejected.
func Parse(raw []byte) (Delta, Form, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Delta{}, FormCanonical, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	switch trimmed[0] {
	case '{':
		var envelope struct {
			Changes json.RawMessage `json:"changes"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return Delta{}, FormCanonical, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(envelope.Changes) == 0 || bytes.Equal(envelope.Changes, []byte("null")) {
			return Delta{}, FormCanonical, ErrMissingChanges
		}
		var d Delta
		if err := json.Unmarshal(envelope.Changes, &d.Changes); err != nil {
			return Delta{}, FormCanonical, fmt.Errorf("%w: changes: %v", ErrMalformed, err)
		}
		if err := d.Validate(); err != nil {
			return Delta{}, FormCanonical, err
		}
		return d, FormCanonical, nil

	case '[':
		var d Delta
		if err := json.Unmarshal(trimmed, &d.Changes); err != nil {
			return Delta{}, FormLegacy, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := d.Validate(); err != nil {
			return Delta{}, FormLegacy, err
		}
		return d, FormLegacy, nil

	default:
		return Delta{}, FormCanonical, fmt.Errorf("%w: unexpected payload starting with %q", ErrMalformed, trimmed[0])
	}
}

// Encode returns the canonical wire form of d.
func Encode(d Delta) ([]byte, error) {
	if d.Changes == nil {
		d.Changes = []Operation{}
	}
	buf, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delta: %w", err)
	}
	return buf, nil
}
