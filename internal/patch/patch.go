// Package patch implements the canonical JSON-patch taxonomy used to mutate
// an execution's conversation timeline. Patches are opaque to callers other
// than the normalizer and timeline packages and are forwarded verbatim to
// subscribers, so their wire shape is part of the public contract.
package patch

import "encoding/json"

// Op enumerates the patch operations a timeline consumer must understand.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Patch is a single RFC6902-shaped mutation addressed to an integer index
// in the timeline. Entry is nil for OpRemove.
type Patch struct {
	Op    Op              `json:"op"`
	Index int             `json:"index"`
	Entry json.RawMessage `json:"entry,omitempty"`
}

// Add builds a patch that inserts entry at index. entry must already be
// JSON-marshaled by the caller (normally timeline.NormalizedEntry).
func Add(index int, entry json.RawMessage) Patch {
	return Patch{Op: OpAdd, Index: index, Entry: entry}
}

// Replace builds a patch that overwrites the entry at index. Replace is
// only legal for an index previously produced by Add; callers that hit an
// unknown replace target should treat it as a logic bug worth logging,
// not a fatal error.
func Replace(index int, entry json.RawMessage) Patch {
	return Patch{Op: OpReplace, Index: index, Entry: entry}
}

// Remove builds a patch that deletes the entry at index.
func Remove(index int) Patch {
	return Patch{Op: OpRemove, Index: index}
}

// Marshal serializes a patch for wire transmission.
func Marshal(p Patch) ([]byte, error) {
	return json.Marshal(p)
}
