package iidfile

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// headerLength is the fixed size, in bytes, of the block at file offset 0:
// twelve little-endian uint32 fields (version, rformat, then five
// (offset, length) pairs).
const headerLength = 12 * 4

// currentVersion is the only header.version this package writes. Open
// rejects any other value with UnsupportedVersionError; rformat is carried
// through unexamined (reserved for region/segment format evolution).
const currentVersion = 1

// blockLoc is an (offset, length) pair, in bytes. For the header's copy it is
// absolute; everywhere else in the format it is block-relative.
type blockLoc struct {
	offset uint32
	length uint32
}

func (b blockLoc) empty() bool { return b.length == 0 }

func readBlockLoc(b []byte) blockLoc {
	_ = b[7]
	return blockLoc{
		offset: binary.LittleEndian.Uint32(b),
		length: binary.LittleEndian.Uint32(b[4:]),
	}
}

func putBlockLoc(b []byte, loc blockLoc) {
	_ = b[7]
	binary.LittleEndian.PutUint32(b, loc.offset)
	binary.LittleEndian.PutUint32(b[4:], loc.length)
}

// header is the root 48-byte block of a .iid container.
type header struct {
	version uint32
	rformat uint32

	lut   blockLoc
	iids  blockLoc
	meta  blockLoc
	grps  blockLoc
	segs  blockLoc
}

// readHeader reads and validates the header at offset 0 of r. size is the
// total file size, used to validate that the five blocks plus the header
// exactly cover the file without gaps or overlaps.
func readHeader(r io.ReaderAt, size int64) (header, error) {
	var buf [headerLength]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return header{}, xerrors.Errorf("reading header: %w", err)
	}

	h := header{
		version: binary.LittleEndian.Uint32(buf[0:4]),
		rformat: binary.LittleEndian.Uint32(buf[4:8]),
		lut:     readBlockLoc(buf[8:16]),
		iids:    readBlockLoc(buf[16:24]),
		meta:    readBlockLoc(buf[24:32]),
		grps:    readBlockLoc(buf[32:40]),
		segs:    readBlockLoc(buf[40:48]),
	}

	if h.version != currentVersion {
		return header{}, &UnsupportedVersionError{Version: h.version}
	}

	if err := h.validateCover(size); err != nil {
		return header{}, err
	}

	return h, nil
}

// validateCover checks that the five blocks, in the fixed on-disk order
// (LUT, IIDs, Metadata, Groups, Segments), are contiguous, non-overlapping,
// and together with the header exactly cover size bytes.
func (h header) validateCover(size int64) error {
	locs := []blockLoc{h.lut, h.iids, h.meta, h.grps, h.segs}
	want := uint32(headerLength)
	for _, loc := range locs {
		if loc.empty() {
			continue
		}
		if loc.offset != want {
			return &CorruptLayoutError{Reason: "block offsets are not contiguous"}
		}
		want += loc.length
	}
	if int64(want) != size {
		return &CorruptLayoutError{Reason: "blocks do not exactly cover the file"}
	}
	return nil
}

func (h header) encode() []byte {
	buf := make([]byte, headerLength)
	binary.LittleEndian.PutUint32(buf[0:4], h.version)
	binary.LittleEndian.PutUint32(buf[4:8], h.rformat)
	putBlockLoc(buf[8:16], h.lut)
	putBlockLoc(buf[16:24], h.iids)
	putBlockLoc(buf[24:32], h.meta)
	putBlockLoc(buf[32:40], h.grps)
	putBlockLoc(buf[40:48], h.segs)
	return buf
}
