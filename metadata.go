package iidfile

import (
	"github.com/bytedance/sonic"
)

// Metadata is the container-opaque JSON side channel (§4.6): an arbitrary
// JSON-serializable mapping that this package never inspects or validates
// beyond well-formedness.
type Metadata struct {
	data map[string]interface{}
}

// Get returns the metadata mapping. A freshly created or empty Metadata
// returns a nil map, not an error.
func (m *Metadata) Get() map[string]interface{} { return m.data }

// Set replaces the metadata mapping.
func (m *Metadata) Set(data map[string]interface{}) { m.data = data }

// decodeMetadata parses the Metadata block. An empty block (no data ever
// set) decodes to a Metadata with a nil mapping, not an error.
func decodeMetadata(buf []byte) (*Metadata, error) {
	if len(buf) == 0 {
		return &Metadata{}, nil
	}
	var data map[string]interface{}
	if err := sonic.Unmarshal(buf, &data); err != nil {
		return nil, &MetadataParseError{Block: "metadata", Err: err}
	}
	return &Metadata{data: data}, nil
}

// encode serializes the Metadata block. A Metadata whose mapping was never
// set encodes as zero bytes, matching the empty-file boundary behavior of
// §8; a Metadata explicitly Set to an empty (but non-nil) map still encodes
// as "{}".
func (m *Metadata) encode() ([]byte, error) {
	if m == nil || m.data == nil {
		return nil, nil
	}
	return sonic.Marshal(m.data)
}
