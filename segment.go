package iidfile

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// segHeaderLen is the fixed prefix of one segment record: key (u32), bbox
// (4 x u16), area (u32).
const segHeaderLen = 4 + 4*2 + 4

// Segment is the full spatial footprint of one IID: a bounding box in image
// coordinates, a pixel area (a property of the segment as a whole, not the
// sum of its regions' pixels), and an ordered list of disjoint Regions.
//
// A Segment obtained from a freshly opened file may not yet have its bbox,
// Area or Regions populated (they read as zero until loaded) — see
// (*File).Fetch.
type Segment struct {
	Key                    uint32
	MinR, MinC, MaxR, MaxC uint16
	Area                   uint32
	Regions                []Region

	loc    blockLoc // block-relative into the Segments block
	loaded bool
}

// Loaded reports whether the bbox, Area and Regions have been materialized.
func (s *Segment) Loaded() bool { return s.loaded }

// Height returns MaxR-MinR.
func (s *Segment) Height() int { return int(s.MaxR) - int(s.MinR) }

// Width returns MaxC-MinC.
func (s *Segment) Width() int { return int(s.MaxC) - int(s.MinC) }

// FromBuffer decomposes mask (shape height x width, in the coordinate frame
// of bbox) into disjoint 8-connected Regions using labeler, and sets Area to
// the number of true pixels in mask. bbox becomes the segment's own bbox.
func (s *Segment) FromBuffer(labeler ComponentLabeler, mask [][]bool, minr, minc, maxr, maxc uint16) {
	s.MinR, s.MinC, s.MaxR, s.MaxC = minr, minc, maxr, maxc
	h, w := int(maxr-minr), int(maxc-minc)

	var area uint32
	for r := 0; r < h && r < len(mask); r++ {
		line := mask[r]
		for c := 0; c < w && c < len(line); c++ {
			if line[c] {
				area++
			}
		}
	}
	s.Area = area

	components := labeler.Label(mask, h, w)
	regions := make([]Region, len(components))
	for i, c := range components {
		regions[i] = Region{
			MinR: minr + uint16(c.MinR),
			MinC: minc + uint16(c.MinC),
			MaxR: minr + uint16(c.MaxR),
			MaxC: minc + uint16(c.MaxC),
			Mask: c.Mask,
		}
	}
	s.Regions = regions
	s.loaded = true
}

// Buffer reconstructs the segment's full mask (shape Height() x Width()) by
// OR-ing each region's mask into its window of the zeroed buffer.
func (s *Segment) Buffer() [][]bool {
	h, w := s.Height(), s.Width()
	buf := make([][]bool, h)
	for i := range buf {
		buf[i] = make([]bool, w)
	}
	for _, r := range s.Regions {
		ro := int(r.MinR) - int(s.MinR)
		co := int(r.MinC) - int(s.MinC)
		for i, line := range r.Mask {
			if ro+i < 0 || ro+i >= h {
				continue
			}
			for j, bit := range line {
				if !bit || co+j < 0 || co+j >= w {
					continue
				}
				buf[ro+i][co+j] = true
			}
		}
	}
	return buf
}

// load decodes this segment's regions from the Segments block reader r, at
// the block-relative location recorded in the lookup table. It is a no-op
// if already loaded.
func (s *Segment) load(r io.ReaderAt, blockOffset int64) error {
	if s.loaded {
		return nil
	}
	if s.loc.empty() {
		s.loaded = true
		return nil
	}
	buf := make([]byte, s.loc.length)
	if _, err := r.ReadAt(buf, blockOffset+int64(s.loc.offset)); err != nil {
		return xerrors.Errorf("reading segment record for key %d: %w", s.Key, err)
	}
	return s.decode(buf)
}

// decode parses one segment record: the fixed header (key, bbox, area)
// followed by a concatenation of region records.
func (s *Segment) decode(buf []byte) error {
	if len(buf) < segHeaderLen {
		return &CorruptLayoutError{Reason: "truncated segment record"}
	}
	s.Key = binary.LittleEndian.Uint32(buf[0:4])
	s.MinR = binary.LittleEndian.Uint16(buf[4:6])
	s.MinC = binary.LittleEndian.Uint16(buf[6:8])
	s.MaxR = binary.LittleEndian.Uint16(buf[8:10])
	s.MaxC = binary.LittleEndian.Uint16(buf[10:12])
	s.Area = binary.LittleEndian.Uint32(buf[12:16])

	var regions []Region
	rest := buf[segHeaderLen:]
	for len(rest) > 0 {
		reg, n, err := decodeRegion(rest)
		if err != nil {
			return err
		}
		regions = append(regions, reg)
		rest = rest[n:]
	}
	s.Regions = regions
	s.loaded = true
	return nil
}

// encode serializes this segment's on-disk record.
func (s *Segment) encode() []byte {
	buf := make([]byte, segHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], s.Key)
	binary.LittleEndian.PutUint16(buf[4:6], s.MinR)
	binary.LittleEndian.PutUint16(buf[6:8], s.MinC)
	binary.LittleEndian.PutUint16(buf[8:10], s.MaxR)
	binary.LittleEndian.PutUint16(buf[10:12], s.MaxC)
	binary.LittleEndian.PutUint32(buf[12:16], s.Area)
	for _, r := range s.Regions {
		buf = append(buf, r.encode()...)
	}
	return buf
}

// encodeSegments concatenates the on-disk records for every live entry in
// lt, in key order, and returns the block-relative blockLoc assigned to each
// slot (empty for tombstones).
func encodeSegments(lt *lookupTable) ([]byte, []blockLoc) {
	var buf []byte
	locs := make([]blockLoc, len(lt.slots))
	for i, e := range lt.slots {
		if e == nil {
			continue
		}
		rec := e.seg.encode()
		locs[i] = blockLoc{offset: uint32(len(buf)), length: uint32(len(rec))}
		buf = append(buf, rec...)
	}
	return buf, locs
}
