package iidfile

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// lutEntryStride is the fixed byte size of one lookup table record: key,
// iid_offset, iid_length, seg_offset, seg_length, all uint32.
const lutEntryStride = 5 * 4

// Entry is the in-memory triple (key, IID, Segment) named by one lookup
// table slot. A nil *Entry in lookupTable.slots represents a tombstone.
type Entry struct {
	key uint32
	iid *IID
	seg *Segment
}

// Key returns the entry's stable key.
func (e *Entry) Key() uint32 { return e.key }

// IID returns the entry's identifier. Its bytes may still be unfetched; see
// IID.Iid and IID.Domain.
func (e *Entry) IID() *IID { return e.iid }

// Segment returns the entry's segment. Its bbox, area and regions may still
// be unfetched; see Segment.Loaded.
func (e *Entry) Segment() *Segment { return e.seg }

// lookupTable is the fixed-stride index mapping a dense key to the
// block-relative locations of its IID and Segment records.
type lookupTable struct {
	slots []*Entry // nil == tombstone
}

// append assigns the next dense key to iid/seg, writes that key back into
// them, and appends the new slot.
func (l *lookupTable) append(iid *IID, seg *Segment) (uint32, error) {
	key := uint64(len(l.slots))
	if key >= uint64(1)<<32 {
		return 0, &OutOfKeysError{}
	}
	k := uint32(key)
	iid.Key = k
	seg.Key = k
	l.slots = append(l.slots, &Entry{key: k, iid: iid, seg: seg})
	return k, nil
}

// get returns the live entry at key, or UnknownKeyError if key is out of
// range or tombstoned.
func (l *lookupTable) get(key uint32) (*Entry, error) {
	if uint64(key) >= uint64(len(l.slots)) {
		return nil, &UnknownKeyError{Key: key}
	}
	e := l.slots[key]
	if e == nil {
		return nil, &UnknownKeyError{Key: key}
	}
	return e, nil
}

// liveKeys returns the keys of all non-tombstoned slots, in ascending order.
func (l *lookupTable) liveKeys() []uint32 {
	keys := make([]uint32, 0, len(l.slots))
	for i, e := range l.slots {
		if e != nil {
			keys = append(keys, uint32(i))
		}
	}
	return keys
}

// decodeLookupTable parses the raw LUT block. If keys is non-nil, only the
// named slots are populated with a live entry; the rest of the table is
// still correctly sized (for UnknownKey bookkeeping) but left as tombstones,
// matching the optional restricted-load behavior of §4.2.
func decodeLookupTable(buf []byte, keys map[uint32]bool) (*lookupTable, error) {
	if len(buf)%lutEntryStride != 0 {
		return nil, &CorruptLayoutError{Reason: "lookup table length is not a multiple of the entry stride"}
	}
	n := len(buf) / lutEntryStride
	lt := &lookupTable{slots: make([]*Entry, n)}
	for i := 0; i < n; i++ {
		rec := buf[i*lutEntryStride : (i+1)*lutEntryStride]
		key := binary.LittleEndian.Uint32(rec[0:4])
		iidLoc := readBlockLoc(rec[4:12])
		segLoc := readBlockLoc(rec[12:20])

		if key == 0 && iidLoc.empty() && segLoc.empty() && i != 0 {
			continue // tombstone
		}
		if keys != nil && !keys[uint32(i)] {
			continue
		}
		lt.slots[i] = &Entry{
			key: uint32(i),
			iid: &IID{Key: uint32(i), loc: iidLoc},
			seg: &Segment{Key: uint32(i), loc: segLoc},
		}
	}
	return lt, nil
}

// encode serializes the lookup table. iidOffsets/segOffsets are the
// block-relative byte offsets already assigned to each live entry's IID and
// Segment payload (see File.Save); tombstones are emitted as all-zero
// records.
func (l *lookupTable) encode(iidOffsets, segOffsets []blockLoc) ([]byte, error) {
	if len(iidOffsets) != len(l.slots) || len(segOffsets) != len(l.slots) {
		return nil, xerrors.Errorf("iidfile: encode lookup table: offset slice length mismatch")
	}
	buf := make([]byte, len(l.slots)*lutEntryStride)
	for i, e := range l.slots {
		rec := buf[i*lutEntryStride : (i+1)*lutEntryStride]
		if e == nil {
			continue // all-zero tombstone record
		}
		binary.LittleEndian.PutUint32(rec[0:4], e.key)
		putBlockLoc(rec[4:12], iidOffsets[i])
		putBlockLoc(rec[12:20], segOffsets[i])
	}
	return buf, nil
}
