package iidfile

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// IID is an opaque identifier: a required iid byte string and an optional
// domain byte string. Two IIDs are equal iff their Iid fields are
// byte-equal; the container never interprets either field.
//
// An IID obtained from a freshly opened file may not yet have Iid/Domain
// populated — see (*File).Fetch. Iid/Domain are materialized only through
// Fetch, Find, Filter or Save; IID has no exported method that loads them.
type IID struct {
	Key    uint32
	Iid    []byte
	Domain []byte

	loc    blockLoc // block-relative into the IIDs block
	loaded bool
}

// Loaded reports whether Iid/Domain have been materialized.
func (i *IID) Loaded() bool { return i.loaded }

// load decodes this IID's bytes from the IIDs block reader r, at the
// block-relative location recorded in the lookup table. It is a no-op if
// already loaded.
func (i *IID) load(r io.ReaderAt, blockOffset int64) error {
	if i.loaded {
		return nil
	}
	if i.loc.empty() {
		i.loaded = true
		return nil
	}
	buf := make([]byte, i.loc.length)
	if _, err := r.ReadAt(buf, blockOffset+int64(i.loc.offset)); err != nil {
		return xerrors.Errorf("reading iid record for key %d: %w", i.Key, err)
	}
	return i.decode(buf)
}

// decode parses one identifier record: key (u32), domain_length (u32),
// iid_length (u32), domain_bytes, iid_bytes.
func (i *IID) decode(buf []byte) error {
	if len(buf) < 12 {
		return &CorruptLayoutError{Reason: "truncated iid record"}
	}
	key := binary.LittleEndian.Uint32(buf[0:4])
	domLen := binary.LittleEndian.Uint32(buf[4:8])
	iidLen := binary.LittleEndian.Uint32(buf[8:12])
	want := 12 + int(domLen) + int(iidLen)
	if len(buf) != want {
		return &CorruptLayoutError{Reason: "iid record length does not match its own length fields"}
	}
	i.Key = key
	off := 12
	if domLen > 0 {
		i.Domain = append([]byte(nil), buf[off:off+int(domLen)]...)
	} else {
		i.Domain = nil
	}
	off += int(domLen)
	i.Iid = append([]byte(nil), buf[off:off+int(iidLen)]...)
	i.loaded = true
	return nil
}

// encode serializes this IID's on-disk record: key, domain_length,
// iid_length, domain_bytes, iid_bytes.
func (i *IID) encode() []byte {
	buf := make([]byte, 12+len(i.Domain)+len(i.Iid))
	binary.LittleEndian.PutUint32(buf[0:4], i.Key)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(i.Domain)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(i.Iid)))
	off := 12
	off += copy(buf[off:], i.Domain)
	copy(buf[off:], i.Iid)
	return buf
}

// encodeIIDs concatenates the on-disk records for every live entry in lt, in
// key order, and returns the block-relative blockLoc assigned to each slot
// (empty for tombstones).
func encodeIIDs(lt *lookupTable) ([]byte, []blockLoc) {
	var buf []byte
	locs := make([]blockLoc, len(lt.slots))
	for i, e := range lt.slots {
		if e == nil {
			continue
		}
		rec := e.iid.encode()
		locs[i] = blockLoc{offset: uint32(len(buf)), length: uint32(len(rec))}
		buf = append(buf, rec...)
	}
	return buf, locs
}
