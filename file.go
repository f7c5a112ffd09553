package iidfile

import (
	"context"
	"sort"

	"github.com/google/renameio"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// maxFetchWorkers bounds the internal fan-out used by Fetch/Find/Filter to
// materialize several keys' IID/Segment bytes concurrently. This concurrency
// is purely an implementation detail of a single call (§5); it is not a
// caller-visible streaming API.
const maxFetchWorkers = 8

// File is an open .iid container: the lookup table, groups directory, and
// metadata are held in memory; identifier and segment payloads are
// materialized on demand from the backing mmap (see Fetch, Find, Filter).
//
// A File obtained from New has no backing mmap at all — every block starts
// empty and grows only through Add — and behaves as a fully in-memory
// container until the first Save.
type File struct {
	ra      *mmap.ReaderAt
	labeler ComponentLabeler
	rformat uint32

	lut    *lookupTable
	groups *Groups
	meta   *Metadata

	iidsBlockOffset int64
	segsBlockOffset int64
}

// New returns an empty File ready to be populated with Add and written with
// Save. labeler is used by callers building Segments via Segment.FromBuffer;
// it may be nil if the caller always supplies fully-formed Segments.
func New(labeler ComponentLabeler) *File {
	return &File{
		labeler: labeler,
		lut:     &lookupTable{},
		groups:  newGroups(),
		meta:    &Metadata{},
	}
}

// Labeler returns the ComponentLabeler this File was constructed or opened
// with.
func (f *File) Labeler() ComponentLabeler { return f.labeler }

// Open memory-maps path and reads its header, lookup table, groups
// directory, and metadata. If groupNames is non-empty, the lookup table is
// restricted to the union of those groups' keys (§4.2); every other live key
// is treated as absent for the lifetime of the returned File. Identifier and
// segment payloads are not read here — they are eagerly indexed (their
// on-disk location is known) but lazily materialized, see Fetch.
func Open(path string, groupNames []string, labeler ComponentLabeler) (*File, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("iidfile: open %s: %w", path, err)
	}
	size := int64(ra.Len())

	hdr, err := readHeader(ra, size)
	if err != nil {
		ra.Close()
		return nil, err
	}

	groupsBuf := make([]byte, hdr.grps.length)
	if len(groupsBuf) > 0 {
		if _, err := ra.ReadAt(groupsBuf, int64(hdr.grps.offset)); err != nil {
			ra.Close()
			return nil, xerrors.Errorf("reading groups block: %w", err)
		}
	}
	groups, err := decodeGroups(groupsBuf, int64(hdr.grps.offset))
	if err != nil {
		ra.Close()
		return nil, err
	}

	var keyFilter map[uint32]bool
	if len(groupNames) > 0 {
		keys, err := groups.Get(ra, groupNames)
		if err != nil {
			ra.Close()
			return nil, err
		}
		keyFilter = make(map[uint32]bool, len(keys))
		for _, k := range keys {
			keyFilter[k] = true
		}
	}

	lutBuf := make([]byte, hdr.lut.length)
	if len(lutBuf) > 0 {
		if _, err := ra.ReadAt(lutBuf, int64(hdr.lut.offset)); err != nil {
			ra.Close()
			return nil, xerrors.Errorf("reading lookup table: %w", err)
		}
	}
	lut, err := decodeLookupTable(lutBuf, keyFilter)
	if err != nil {
		ra.Close()
		return nil, err
	}

	metaBuf := make([]byte, hdr.meta.length)
	if len(metaBuf) > 0 {
		if _, err := ra.ReadAt(metaBuf, int64(hdr.meta.offset)); err != nil {
			ra.Close()
			return nil, xerrors.Errorf("reading metadata block: %w", err)
		}
	}
	meta, err := decodeMetadata(metaBuf)
	if err != nil {
		ra.Close()
		return nil, err
	}

	return &File{
		ra:              ra,
		labeler:         labeler,
		rformat:         hdr.rformat,
		lut:             lut,
		groups:          groups,
		meta:            meta,
		iidsBlockOffset: int64(hdr.iids.offset),
		segsBlockOffset: int64(hdr.segs.offset),
	}, nil
}

// Close releases the backing mmap, if any. A File created with New, never
// saved, has nothing to release.
func (f *File) Close() error {
	if f.ra == nil {
		return nil
	}
	return f.ra.Close()
}

// Metadata returns the container-opaque JSON side channel.
func (f *File) Metadata() *Metadata { return f.meta }

// Groups returns the groups directory.
func (f *File) Groups() *Groups { return f.groups }

// Add assigns the next dense key to iid (with optional domain) and seg,
// writing the key back into both, and appends the new key to group if
// non-empty. iid must be non-nil.
func (f *File) Add(iid, domain []byte, seg *Segment, group string) (uint32, error) {
	if iid == nil {
		return 0, &NotBytesError{Field: "iid"}
	}
	if seg == nil {
		return 0, &NotBytesError{Field: "segment"}
	}
	iidObj := &IID{Iid: iid, Domain: domain, loaded: true}
	seg.loaded = true
	key, err := f.lut.append(iidObj, seg)
	if err != nil {
		return 0, err
	}
	if group != "" {
		if err := f.groups.Add(f.lut, group, []uint32{key}); err != nil {
			return 0, err
		}
	}
	return key, nil
}

// FetchOptions selects which keys Fetch materializes and how.
type FetchOptions struct {
	Keys       []uint32
	AllKeys    bool
	Groups     []string
	IIDs       bool
	Segs       bool
	Everything bool
}

// resolveKeys applies the fixed resolution order shared by Fetch, Find and
// Filter: everything > groups > all_keys > explicit keys.
func (f *File) resolveKeys(everything, allKeys bool, groups []string, keys []uint32) ([]uint32, error) {
	switch {
	case everything:
		return f.lut.liveKeys(), nil
	case len(groups) > 0:
		return f.groups.Get(f.ra, groups)
	case allKeys:
		return f.lut.liveKeys(), nil
	default:
		for _, k := range keys {
			if _, err := f.lut.get(k); err != nil {
				return nil, err
			}
		}
		return keys, nil
	}
}

// Fetch materializes identifier and/or segment payloads for the key set
// resolved from opts, and returns the resulting entries. Fetching is
// idempotent: a key whose IID/Segment is already loaded is not re-read.
func (f *File) Fetch(ctx context.Context, opts FetchOptions) ([]*Entry, error) {
	iids, segs := opts.IIDs, opts.Segs
	if opts.Everything {
		iids, segs = true, true
	}
	keys, err := f.resolveKeys(opts.Everything, opts.AllKeys, opts.Groups, opts.Keys)
	if err != nil {
		return nil, err
	}
	entries, err := f.entriesForKeys(keys)
	if err != nil {
		return nil, err
	}
	if err := f.materialize(ctx, entries, iids, segs); err != nil {
		return nil, err
	}
	return entries, nil
}

// entriesForKeys looks up the live entry for each key, deduplicating and
// sorting ascending for deterministic output (§4.7 leaves iteration order
// unspecified; this package always returns ascending key order).
func (f *File) entriesForKeys(keys []uint32) ([]*Entry, error) {
	seen := make(map[uint32]bool, len(keys))
	var uniq []uint32
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	out := make([]*Entry, 0, len(uniq))
	for _, k := range uniq {
		e, err := f.lut.get(k)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// materialize loads IID and/or Segment bytes for entries, fanning out across
// a bounded worker pool. Already-loaded fields are untouched (load is
// idempotent), so repeat calls over overlapping key sets are cheap.
func (f *File) materialize(ctx context.Context, entries []*Entry, wantIIDs, wantSegs bool) error {
	if !wantIIDs && !wantSegs {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxFetchWorkers)
	for _, e := range entries {
		e := e
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.Go(func() error {
			defer func() { <-sem }()
			if wantIIDs {
				if err := e.iid.load(f.ra, f.iidsBlockOffset); err != nil {
					return err
				}
			}
			if wantSegs {
				if err := e.seg.load(f.ra, f.segsBlockOffset); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Find returns entries whose stored IID bytes appear in iids, optionally
// restricting the candidate key space to groups first and post-filtering on
// domains. Segment payloads are materialized iff segs.
func (f *File) Find(ctx context.Context, iids [][]byte, groups []string, domains [][]byte, segs bool) ([]*Entry, error) {
	keys, err := f.resolveKeys(false, len(groups) == 0, groups, nil)
	if err != nil {
		return nil, err
	}
	entries, err := f.entriesForKeys(keys)
	if err != nil {
		return nil, err
	}
	if err := f.materialize(ctx, entries, true, false); err != nil {
		return nil, err
	}

	wantIID := make(map[string]bool, len(iids))
	for _, b := range iids {
		wantIID[string(b)] = true
	}
	var wantDomain map[string]bool
	if len(domains) > 0 {
		wantDomain = make(map[string]bool, len(domains))
		for _, b := range domains {
			wantDomain[string(b)] = true
		}
	}

	var out []*Entry
	for _, e := range entries {
		if !wantIID[string(e.iid.Iid)] {
			continue
		}
		if wantDomain != nil && !wantDomain[string(e.iid.Domain)] {
			continue
		}
		out = append(out, e)
	}
	if segs {
		if err := f.materialize(ctx, out, false, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AreaRange is an exclusive (min, max) bound on Segment.Area, either end
// optional. Filter keeps entries with min < area < max.
type AreaRange struct {
	Min, Max *uint32
}

// Filter returns entries from groups (or every live key, if groups is
// empty) whose segment area falls strictly within area, and whose domain
// bytes appear in domains when given. If area is non-nil, segment payloads
// are forced materialized regardless of segs.
func (f *File) Filter(ctx context.Context, groups []string, area *AreaRange, domains [][]byte, segs bool) ([]*Entry, error) {
	keys, err := f.resolveKeys(false, len(groups) == 0, groups, nil)
	if err != nil {
		return nil, err
	}
	entries, err := f.entriesForKeys(keys)
	if err != nil {
		return nil, err
	}

	wantSegs := segs || area != nil
	wantIIDs := len(domains) > 0
	if err := f.materialize(ctx, entries, wantIIDs, wantSegs); err != nil {
		return nil, err
	}

	var wantDomain map[string]bool
	if len(domains) > 0 {
		wantDomain = make(map[string]bool, len(domains))
		for _, b := range domains {
			wantDomain[string(b)] = true
		}
	}

	var out []*Entry
	for _, e := range entries {
		if area != nil {
			a := e.seg.Area
			if area.Min != nil && !(a > *area.Min) {
				continue
			}
			if area.Max != nil && !(a < *area.Max) {
				continue
			}
		}
		if wantDomain != nil && !wantDomain[string(e.iid.Domain)] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// fetchAllLive ensures every live entry's IID and Segment is fully
// materialized from the current backing mmap. Save calls this before
// encoding, since encoding reads Go struct fields directly and cannot
// silently drop payloads that were never fetched from disk.
func (f *File) fetchAllLive(ctx context.Context) error {
	if f.ra == nil {
		return nil
	}
	entries, err := f.entriesForKeys(f.lut.liveKeys())
	if err != nil {
		return err
	}
	return f.materialize(ctx, entries, true, true)
}

// Save encodes the container and atomically replaces path with the result
// (§4.8): a payload pass builds byte buffers for segments, groups, metadata
// and identifiers bottom-up, then an offset pass assigns their absolute
// positions LUT → IIDs → Metadata → Groups → Segments and writes the header.
// Any previously unfetched payloads are materialized first, since encoding
// reads Go struct fields directly. After Save succeeds, this File's backing
// mmap is replaced with one over the new file; the old mmap is closed.
func (f *File) Save(ctx context.Context, path string) error {
	if err := f.fetchAllLive(ctx); err != nil {
		return err
	}
	if f.ra != nil {
		if err := f.groups.loadAll(f.ra); err != nil {
			return err
		}
	}

	segsBuf, segLocs := encodeSegments(f.lut)
	groupsBuf, err := f.groups.encode()
	if err != nil {
		return err
	}
	metaBuf, err := f.meta.encode()
	if err != nil {
		return err
	}
	iidsBuf, iidLocs := encodeIIDs(f.lut)
	lutBuf, err := f.lut.encode(iidLocs, segLocs)
	if err != nil {
		return err
	}

	off := uint32(headerLength)
	lutLoc := blockLoc{offset: off, length: uint32(len(lutBuf))}
	off += lutLoc.length
	iidsLoc := blockLoc{offset: off, length: uint32(len(iidsBuf))}
	off += iidsLoc.length
	metaLoc := blockLoc{offset: off, length: uint32(len(metaBuf))}
	off += metaLoc.length
	grpsLoc := blockLoc{offset: off, length: uint32(len(groupsBuf))}
	off += grpsLoc.length
	segsLoc := blockLoc{offset: off, length: uint32(len(segsBuf))}
	off += segsLoc.length

	hdr := header{
		version: currentVersion,
		rformat: f.rformat,
		lut:     zeroIfEmpty(lutLoc),
		iids:    zeroIfEmpty(iidsLoc),
		meta:    zeroIfEmpty(metaLoc),
		grps:    zeroIfEmpty(grpsLoc),
		segs:    zeroIfEmpty(segsLoc),
	}

	buf := make([]byte, 0, off)
	buf = append(buf, hdr.encode()...)
	buf = append(buf, lutBuf...)
	buf = append(buf, iidsBuf...)
	buf = append(buf, metaBuf...)
	buf = append(buf, groupsBuf...)
	buf = append(buf, segsBuf...)

	if err := renameio.WriteFile(path, buf, 0o644); err != nil {
		return xerrors.Errorf("iidfile: saving %s: %w", path, err)
	}

	ra, err := mmap.Open(path)
	if err != nil {
		return xerrors.Errorf("iidfile: reopening %s after save: %w", path, err)
	}
	old := f.ra
	f.ra = ra
	f.iidsBlockOffset = int64(hdr.iids.offset)
	f.segsBlockOffset = int64(hdr.segs.offset)
	f.groups.blockOffset = int64(hdr.grps.offset)
	if old != nil {
		old.Close()
	}
	return nil
}

// zeroIfEmpty collapses a zero-length blockLoc to the all-zero sentinel, so
// that a block with no payload never records a nonzero offset (consistent
// with the empty-file boundary law of §8).
func zeroIfEmpty(loc blockLoc) blockLoc {
	if loc.length == 0 {
		return blockLoc{}
	}
	return loc
}
