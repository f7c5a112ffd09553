package iidfile

import "fmt"

// UnsupportedVersionError is returned by Open when the header's version field
// names a format revision this package does not understand.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("iidfile: unsupported version %d", e.Version)
}

// CorruptLayoutError is returned when the header's block offsets/lengths do
// not describe a contiguous, non-overlapping cover of the file, or when a
// block's own internal framing (e.g. the LUT's entry stride) is inconsistent.
type CorruptLayoutError struct {
	Reason string
}

func (e *CorruptLayoutError) Error() string {
	return fmt.Sprintf("iidfile: corrupt layout: %s", e.Reason)
}

// MetadataParseError is returned when the Metadata block or the Groups
// directory does not contain valid JSON.
type MetadataParseError struct {
	Block string
	Err   error
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("iidfile: %s: invalid JSON: %v", e.Block, e.Err)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

// NotBytesError is returned by Add when the caller-supplied iid or domain is
// not a byte sequence. It exists mainly for parity with host-language
// bindings where the argument type is not statically enforced; in Go, a
// non-[]byte argument cannot reach this package at all, but entries with a
// nil required iid still trip it.
type NotBytesError struct {
	Field string
}

func (e *NotBytesError) Error() string {
	return fmt.Sprintf("iidfile: %s must be a non-nil byte sequence", e.Field)
}

// UnknownKeyError is returned when a key is out of range of the lookup table
// or refers to a tombstoned slot.
type UnknownKeyError struct {
	Key uint32
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("iidfile: unknown key %d", e.Key)
}

// UnknownGroupError is returned when a requested group name does not exist.
type UnknownGroupError struct {
	Name string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("iidfile: unknown group %q", e.Name)
}

// DanglingKeyError is returned by Groups.Add when a key does not exist in the
// lookup table.
type DanglingKeyError struct {
	Key uint32
}

func (e *DanglingKeyError) Error() string {
	return fmt.Sprintf("iidfile: group references dangling key %d", e.Key)
}

// OutOfKeysError is returned by the lookup table once the dense key space
// (uint32) is exhausted.
type OutOfKeysError struct{}

func (e *OutOfKeysError) Error() string {
	return "iidfile: key space exhausted"
}
