package iidfile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMetadataEncodeDecodeRoundTrip(t *testing.T) {
	m := &Metadata{}
	m.Set(map[string]interface{}{"source": "survey-2026", "count": float64(3)})
	buf, err := m.encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeMetadata(buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Get(), got.Get()); diff != "" {
		t.Errorf("metadata round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataEmptyIsNotError(t *testing.T) {
	got, err := decodeMetadata(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Get() != nil {
		t.Errorf("Get() = %v, want nil map for an empty block", got.Get())
	}
	buf, err := (&Metadata{}).encode()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 0 {
		t.Errorf("encode() of unset metadata = %v, want empty", buf)
	}
}

func TestMetadataParseError(t *testing.T) {
	_, err := decodeMetadata([]byte("not json"))
	if _, ok := err.(*MetadataParseError); !ok {
		t.Fatalf("err = %v, want *MetadataParseError", err)
	}
}
