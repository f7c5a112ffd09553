package ccl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFloodFillTwoComponents(t *testing.T) {
	mask := [][]bool{
		{true, false, false, false},
		{false, false, false, false},
		{false, false, true, true},
		{false, false, false, true},
	}
	got := FloodFill{}.Label(mask, 4, 4)
	if len(got) != 2 {
		t.Fatalf("Label returned %d components, want 2", len(got))
	}
	if got[0].MinR != 0 || got[0].MinC != 0 || got[0].MaxR != 1 || got[0].MaxC != 1 {
		t.Errorf("first component bbox = %+v, want (0,0,1,1)", got[0])
	}
	if got[1].MinR != 2 || got[1].MinC != 2 || got[1].MaxR != 4 || got[1].MaxC != 4 {
		t.Errorf("second component bbox = %+v, want (2,2,4,4)", got[1])
	}
}

func TestFloodFillDiagonalConnectivity(t *testing.T) {
	// Two pixels touching only at a corner are 8-connected, hence one
	// component.
	mask := [][]bool{
		{true, false},
		{false, true},
	}
	got := FloodFill{}.Label(mask, 2, 2)
	if len(got) != 1 {
		t.Fatalf("Label returned %d components, want 1 (diagonal touch)", len(got))
	}
	want := [][]bool{{true, false}, {false, true}}
	if diff := cmp.Diff(want, got[0].Mask); diff != "" {
		t.Errorf("component mask mismatch (-want +got):\n%s", diff)
	}
}

func TestFloodFillEmptyMask(t *testing.T) {
	mask := [][]bool{{false, false}, {false, false}}
	got := FloodFill{}.Label(mask, 2, 2)
	if len(got) != 0 {
		t.Errorf("Label(all-false) = %d components, want 0", len(got))
	}
}
