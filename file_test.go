package iidfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func readAllFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func mustSave(t *testing.T, f *File, path string) {
	t.Helper()
	if err := f.Save(context.Background(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestOneEntryMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.iid")
	f := New(nil)
	seg := &Segment{
		MinR: 0, MinC: 0, MaxR: 2, MaxC: 2, Area: 3,
		Regions: []Region{
			{MinR: 0, MinC: 0, MaxR: 2, MaxC: 2, Mask: [][]bool{{true, true}, {true, false}}},
		},
	}
	if _, err := f.Add([]byte("\x00\x01"), []byte("d"), seg, ""); err != nil {
		t.Fatal(err)
	}
	mustSave(t, f, path)
	f.Close()

	reopened, err := Open(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	entries, err := reopened.Fetch(context.Background(), FetchOptions{Keys: []uint32{0}, Segs: true, IIDs: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("Fetch returned %d entries, want 1", len(entries))
	}
	e := entries[0]
	if string(e.IID().Iid) != "\x00\x01" {
		t.Errorf("Iid = %q, want \\x00\\x01", e.IID().Iid)
	}
	if string(e.IID().Domain) != "d" {
		t.Errorf("Domain = %q, want d", e.IID().Domain)
	}
	if len(e.Segment().Regions) != 1 {
		t.Fatalf("Regions = %d, want 1", len(e.Segment().Regions))
	}
	want := [][]bool{{true, true}, {true, false}}
	got := e.Segment().Regions[0].Mask
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("Mask[%d][%d] = %v, want %v", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func TestTwoRegionSegmentBuffer(t *testing.T) {
	seg := &Segment{
		MinR: 0, MinC: 0, MaxR: 4, MaxC: 4, Area: 2,
		Regions: []Region{
			{MinR: 0, MinC: 0, MaxR: 1, MaxC: 1, Mask: [][]bool{{true}}},
			{MinR: 3, MinC: 3, MaxR: 4, MaxC: 4, Mask: [][]bool{{true}}},
		},
	}
	buf := seg.Buffer()
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			want := (r == 0 && c == 0) || (r == 3 && c == 3)
			if buf[r][c] != want {
				t.Errorf("Buffer()[%d][%d] = %v, want %v", r, c, buf[r][c], want)
			}
		}
	}
}

func TestGroupMembershipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.iid")
	f := New(nil)
	for i := 0; i < 3; i++ {
		if _, err := f.Add([]byte{byte(i)}, nil, &Segment{}, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Groups().Add(f.lut, "A", []uint32{0, 2}); err != nil {
		t.Fatal(err)
	}
	mustSave(t, f, path)
	f.Close()

	reopened, err := Open(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	entries, err := reopened.Fetch(context.Background(), FetchOptions{Groups: []string{"A"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Fetch(groups=[A]) returned %d entries, want 2", len(entries))
	}
	if entries[0].Key() != 0 || entries[1].Key() != 2 {
		t.Errorf("keys = [%d %d], want [0 2]", entries[0].Key(), entries[1].Key())
	}
}

func TestFindByIID(t *testing.T) {
	f := New(nil)
	for _, b := range [][]byte{[]byte("x"), []byte("y"), []byte("z")} {
		if _, err := f.Add(b, nil, &Segment{}, ""); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := f.Find(context.Background(), [][]byte{[]byte("y")}, nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("Find([y]) returned %d entries, want 1", len(entries))
	}
	if entries[0].Key() != 1 {
		t.Errorf("Find([y]) key = %d, want 1", entries[0].Key())
	}
}

func TestFilterByArea(t *testing.T) {
	f := New(nil)
	for _, area := range []uint32{10, 50, 500} {
		if _, err := f.Add([]byte{byte(area)}, nil, &Segment{Area: area}, ""); err != nil {
			t.Fatal(err)
		}
	}
	min, max := uint32(20), uint32(200)
	entries, err := f.Filter(context.Background(), nil, &AreaRange{Min: &min, Max: &max}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("Filter(area=(20,200)) returned %d entries, want 1", len(entries))
	}
	if entries[0].Segment().Area != 50 {
		t.Errorf("Filter result area = %d, want 50", entries[0].Segment().Area)
	}
}

func TestSaveSaveByteEqual(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "p1.iid")
	p2 := filepath.Join(dir, "p2.iid")

	f := New(nil)
	for i := 0; i < 3; i++ {
		if _, err := f.Add([]byte{byte(i)}, nil, &Segment{Area: uint32(i)}, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Groups().Add(f.lut, "A", []uint32{0, 2}); err != nil {
		t.Fatal(err)
	}
	mustSave(t, f, p1)

	reopened, err := Open(p1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	mustSave(t, reopened, p2)
	reopened.Close()

	b1, err := readAllFile(p1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := readAllFile(p2)
	if err != nil {
		t.Fatal(err)
	}
	if len(b1) != len(b2) {
		t.Fatalf("p1 length %d != p2 length %d", len(b1), len(b2))
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Fatalf("p1 and p2 differ at byte %d", i)
		}
	}
}

func TestEmptyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.iid")
	f := New(nil)
	mustSave(t, f, path)
	f.Close()

	buf, err := readAllFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != headerLength {
		t.Fatalf("empty file length = %d, want %d", len(buf), headerLength)
	}

	reopened, err := Open(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if len(reopened.lut.liveKeys()) != 0 {
		t.Error("reopened empty file should have no live keys")
	}
}

func TestAddRequiresIID(t *testing.T) {
	f := New(nil)
	if _, err := f.Add(nil, nil, &Segment{}, ""); err == nil {
		t.Fatal("expected NotBytesError for nil iid")
	}
}

func TestFetchUnknownKey(t *testing.T) {
	f := New(nil)
	if _, err := f.Add([]byte("a"), nil, &Segment{}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Fetch(context.Background(), FetchOptions{Keys: []uint32{9}}); err == nil {
		t.Fatal("expected UnknownKeyError")
	}
}
