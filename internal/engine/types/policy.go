package types

import (
	"fmt"
	"strings"
)

// CreationPolicy governs what happens when the resolved destination path
// already exists. Ordinal values are fixed: the scheduler boundary
// serializes the policy as an integer.
type CreationPolicy int

const (
	// Overwrite deletes any existing file and writes from offset 0.
	Overwrite CreationPolicy = iota
	// Append keeps existing bytes and resumes from the current file length.
	Append
	// CreateNew never reuses an existing path; a suffixed name is derived.
	CreateNew
)

func (p CreationPolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case Append:
		return "append"
	case CreateNew:
		return "createnew"
	default:
		return fmt.Sprintf("creationpolicy(%d)", int(p))
	}
}

// ParsePolicy maps a user-facing policy name to its value.
func ParsePolicy(s string) (CreationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite":
		return Overwrite, nil
	case "append":
		return Append, nil
	case "createnew", "create-new":
		return CreateNew, nil
	}
	return 0, fmt.Errorf("unknown creation policy %q", s)
}

// PolicyFromOrdinal maps a serialized policy ordinal back to a
// CreationPolicy, rejecting values outside the known range.
func PolicyFromOrdinal(n int) (CreationPolicy, error) {
	if n < int(Overwrite) || n > int(CreateNew) {
		return 0, fmt.Errorf("creation policy ordinal %d out of range", n)
	}
	return CreationPolicy(n), nil
}
