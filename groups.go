package iidfile

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/bytedance/sonic"
	"golang.org/x/xerrors"
)

// groupDirEntry is one row of the groups directory JSON: a name plus the
// location (relative to the end of the directory header) of its key-set
// payload.
type groupDirEntry struct {
	Name   string `json:"name"`
	Offset uint32 `json:"offset"`
	Length uint32 `json:"length"`
}

// Group is a named set of keys. Groups do not own entries; they merely
// reference keys that must already exist in the lookup table. A Group
// loaded from disk may not yet have its key set materialized — see
// (*Groups).Get, which fetches on demand.
type Group struct {
	Name string

	keys   map[uint32]struct{}
	loc    blockLoc // block-relative into the Groups block, past the directory
	loaded bool
}

// Keys returns the group's key set as a sorted slice. If the group's key set
// has not been loaded yet, the result is empty; (*Groups).Get and loadAll
// load it first.
func (g *Group) Keys() []uint32 {
	out := make([]uint32, 0, len(g.keys))
	for k := range g.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *Group) add(keys []uint32) {
	if g.keys == nil {
		g.keys = make(map[uint32]struct{}, len(keys))
	}
	for _, k := range keys {
		g.keys[k] = struct{}{}
	}
}

// load decodes this group's key-set payload from the Groups block reader r,
// at payloadOffset (block-relative, past the directory header). It is a
// no-op if already loaded.
func (g *Group) load(r io.ReaderAt, payloadOffset int64) error {
	if g.loaded {
		return nil
	}
	if g.loc.empty() {
		g.keys = map[uint32]struct{}{}
		g.loaded = true
		return nil
	}
	buf := make([]byte, g.loc.length)
	if _, err := r.ReadAt(buf, payloadOffset+int64(g.loc.offset)); err != nil {
		return xerrors.Errorf("reading group %q payload: %w", g.Name, err)
	}
	if len(buf)%4 != 0 {
		return &CorruptLayoutError{Reason: "group payload length is not a multiple of 4"}
	}
	keys := make([]uint32, len(buf)/4)
	for i := range keys {
		keys[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	g.keys = map[uint32]struct{}{}
	g.add(keys)
	g.loaded = true
	return nil
}

// dump serializes the group's key set as a deduplicated, ascending-sorted
// array of little-endian u32s, so that repeat saves of unchanged in-memory
// state are byte-identical (§8 round-trip law 4).
func (g *Group) dump() []byte {
	keys := g.Keys()
	buf := make([]byte, len(keys)*4)
	for i, k := range keys {
		binary.LittleEndian.PutUint32(buf[i*4:], k)
	}
	return buf
}

// Groups is the in-memory directory of named key-sets backing the Groups
// block (§4.5).
type Groups struct {
	byName map[string]*Group

	blockOffset   int64 // absolute offset of the Groups block
	dirHeaderSize int64 // 4 + len(directory JSON), for payload offset math
}

func newGroups() *Groups {
	return &Groups{byName: make(map[string]*Group)}
}

// List returns group names sorted lexicographically.
func (g *Groups) List() []string {
	names := make([]string, 0, len(g.byName))
	for name := range g.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add creates the group if absent and unions keys into its set. Every key
// must already exist in lt, or this returns DanglingKeyError.
func (g *Groups) Add(lt *lookupTable, name string, keys []uint32) error {
	for _, k := range keys {
		if _, err := lt.get(k); err != nil {
			return &DanglingKeyError{Key: k}
		}
	}
	grp, ok := g.byName[name]
	if !ok {
		grp = &Group{Name: name, keys: map[uint32]struct{}{}, loaded: true}
		g.byName[name] = grp
	}
	grp.add(keys)
	return nil
}

// resolve loads (if necessary) and returns the named groups, in the order
// given. UnknownGroupError if any name is absent.
func (g *Groups) resolve(r io.ReaderAt, names []string) ([]*Group, error) {
	out := make([]*Group, 0, len(names))
	for _, name := range names {
		grp, ok := g.byName[name]
		if !ok {
			return nil, &UnknownGroupError{Name: name}
		}
		if err := grp.load(r, g.blockOffset+g.dirHeaderSize); err != nil {
			return nil, err
		}
		out = append(out, grp)
	}
	return out, nil
}

// loadAll materializes every group's key set from the backing reader. Save
// calls this before encoding: encode reads each group's in-memory keys map
// directly, so a group that was never queried via Get must still be loaded
// or its payload would silently encode as empty.
func (g *Groups) loadAll(r io.ReaderAt) error {
	for _, grp := range g.byName {
		if err := grp.load(r, g.blockOffset+g.dirHeaderSize); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the union of the named groups' key sets.
func (g *Groups) Get(r io.ReaderAt, names []string) ([]uint32, error) {
	grps, err := g.resolve(r, names)
	if err != nil {
		return nil, err
	}
	seen := map[uint32]struct{}{}
	var out []uint32
	for _, grp := range grps {
		for k := range grp.keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// decodeGroups parses the Groups block: the directory header (dir_length +
// JSON array of {name, offset, length}), loading only the directory, not
// the key-set payloads.
func decodeGroups(buf []byte, blockOffset int64) (*Groups, error) {
	g := newGroups()
	g.blockOffset = blockOffset
	if len(buf) == 0 {
		g.dirHeaderSize = 0
		return g, nil
	}
	if len(buf) < 4 {
		return nil, &CorruptLayoutError{Reason: "truncated groups directory header"}
	}
	dirLen := binary.LittleEndian.Uint32(buf[0:4])
	if int(dirLen) > len(buf)-4 {
		return nil, &CorruptLayoutError{Reason: "groups directory length out of bounds"}
	}
	var dir []groupDirEntry
	if err := sonic.Unmarshal(buf[4:4+dirLen], &dir); err != nil {
		return nil, &MetadataParseError{Block: "groups directory", Err: err}
	}
	g.dirHeaderSize = int64(4 + dirLen)
	for _, de := range dir {
		g.byName[de.Name] = &Group{
			Name: de.Name,
			loc:  blockLoc{offset: de.Offset, length: de.Length},
		}
	}
	return g, nil
}

// encode serializes the Groups block: directory header (names sorted, since
// map iteration order is otherwise arbitrary) followed by each group's
// key-set payload, back to back in directory order.
func (g *Groups) encode() ([]byte, error) {
	names := g.List()
	if len(names) == 0 {
		return nil, nil
	}
	dir := make([]groupDirEntry, 0, len(names))
	var payloads []byte
	for _, name := range names {
		grp := g.byName[name]
		buf := grp.dump()
		dir = append(dir, groupDirEntry{Name: name, Offset: uint32(len(payloads)), Length: uint32(len(buf))})
		payloads = append(payloads, buf...)
	}
	dirJSON, err := sonic.Marshal(dir)
	if err != nil {
		return nil, xerrors.Errorf("encoding groups directory: %w", err)
	}
	out := make([]byte, 4, 4+len(dirJSON)+len(payloads))
	binary.LittleEndian.PutUint32(out, uint32(len(dirJSON)))
	out = append(out, dirJSON...)
	out = append(out, payloads...)
	return out, nil
}
