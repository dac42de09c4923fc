package sse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartialPolicy decides what happens to a data payload that is not a
// complete JSON document.
type PartialPolicy int

const (
	// PartialDrop discards the payload.
	PartialDrop PartialPolicy = iota
	// PartialMerge holds the payload and retries it joined with the next one.
	PartialMerge
)

// maxPending bounds the bytes held under PartialMerge.
const maxPending = 1 << 20

// ParsePartialPolicy maps a configuration value to a policy.
func ParsePartialPolicy(s string) (PartialPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return PartialDrop, nil
	case "merge":
		return PartialMerge, nil
	}
	return PartialDrop, fmt.Errorf("unknown partial JSON policy %q (want drop or merge)", s)
}

func (p PartialPolicy) String() string {
	if p == PartialMerge {
		return "merge"
	}
	return "drop"
}

// Assembler turns data payloads into complete JSON documents according to a
// PartialPolicy. It is not safe for concurrent use; each stream owns one.
type Assembler struct {
	policy  PartialPolicy
	pending string
}

// NewAssembler returns an Assembler using policy.
func NewAssembler(policy PartialPolicy) *Assembler {
	return &Assembler{policy: policy}
}

// Feed accepts one payload and returns a complete JSON document when one is
// available.
func (a *Assembler) Feed(payload string) (json.RawMessage, bool) {
	if a.pending != "" {
		joined := a.pending + "\n" + payload
		if json.Valid([]byte(joined)) {
			a.pending = ""
			return json.RawMessage(joined), true
		}
		if json.Valid([]byte(payload)) {
			// The held fragment never completed; the new payload stands alone.
			a.pending = ""
			return json.RawMessage(payload), true
		}
		a.hold(joined)
		return nil, false
	}

	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload), true
	}
	if a.policy == PartialMerge {
		a.hold(payload)
	}
	return nil, false
}

// Pending reports whether a fragment is being held.
func (a *Assembler) Pending() bool {
	return a.pending != ""
}

func (a *Assembler) hold(s string) {
	if len(s) > maxPending {
		a.pending = ""
		return
	}
	a.pending = s
}
