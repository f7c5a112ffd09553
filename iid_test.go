package iidfile

import "testing"

func TestIIDEncodeDecodeRoundTrip(t *testing.T) {
	orig := &IID{Key: 7, Iid: []byte("\x00\x01"), Domain: []byte("d")}
	buf := orig.encode()

	got := &IID{}
	if err := got.decode(buf); err != nil {
		t.Fatal(err)
	}
	if got.Key != orig.Key {
		t.Errorf("Key = %d, want %d", got.Key, orig.Key)
	}
	if string(got.Iid) != string(orig.Iid) {
		t.Errorf("Iid = %q, want %q", got.Iid, orig.Iid)
	}
	if string(got.Domain) != string(orig.Domain) {
		t.Errorf("Domain = %q, want %q", got.Domain, orig.Domain)
	}
	if !got.Loaded() {
		t.Error("decoded IID should be Loaded")
	}
}

func TestIIDEncodeDecodeNoDomain(t *testing.T) {
	orig := &IID{Key: 1, Iid: []byte("x")}
	got := &IID{}
	if err := got.decode(orig.encode()); err != nil {
		t.Fatal(err)
	}
	if got.Domain != nil {
		t.Errorf("Domain = %q, want nil", got.Domain)
	}
}

func TestIIDDecodeTruncated(t *testing.T) {
	if err := (&IID{}).decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated iid record")
	}
}

func TestIIDDecodeLengthMismatch(t *testing.T) {
	buf := (&IID{Iid: []byte("xy")}).encode()
	buf = buf[:len(buf)-1] // truncate the last byte of iid_bytes
	if err := (&IID{}).decode(buf); err == nil {
		t.Fatal("expected error for length field mismatch")
	}
}

func TestIIDLoadIdempotent(t *testing.T) {
	i := &IID{Key: 0, Iid: []byte("a"), loaded: true}
	if err := i.load(nil, 0); err != nil {
		t.Fatalf("load on already-loaded IID should be a no-op: %v", err)
	}
}

func TestIIDLoadEmptyLoc(t *testing.T) {
	i := &IID{loc: blockLoc{}}
	if err := i.load(nil, 0); err != nil {
		t.Fatal(err)
	}
	if !i.Loaded() {
		t.Error("IID with an empty loc should be considered loaded after load")
	}
}
