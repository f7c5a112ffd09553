// Package ccl provides the bundled default connected-component labeler.
package ccl

import "github.com/segstore/iidfile"

// FloodFill is a pure-Go, dependency-free iidfile.ComponentLabeler using
// 8-connectivity (diagonals count as connected). It is the bundled default;
// iidfile never selects a labeler itself, so callers pass FloodFill (or any
// other ComponentLabeler) explicitly.
type FloodFill struct{}

// Label implements iidfile.ComponentLabeler.
func (FloodFill) Label(mask [][]bool, height, width int) []iidfile.LabeledComponent {
	visited := make([][]bool, height)
	for i := range visited {
		visited[i] = make([]bool, width)
	}

	var out []iidfile.LabeledComponent
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			if visited[r][c] || !at(mask, r, c) {
				continue
			}
			out = append(out, fill(mask, visited, r, c, height, width))
		}
	}
	return out
}

func at(mask [][]bool, r, c int) bool {
	if r < 0 || r >= len(mask) {
		return false
	}
	line := mask[r]
	if c < 0 || c >= len(line) {
		return false
	}
	return line[c]
}

var neighbors8 = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// fill runs a BFS flood fill from (r0, c0), marking visited pixels and
// returning the component's local bbox and cropped mask.
func fill(mask, visited [][]bool, r0, c0, height, width int) iidfile.LabeledComponent {
	minr, minc, maxr, maxc := r0, c0, r0+1, c0+1

	queue := [][2]int{{r0, c0}}
	visited[r0][c0] = true
	var pixels [][2]int

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		pixels = append(pixels, p)
		r, c := p[0], p[1]
		if r < minr {
			minr = r
		}
		if c < minc {
			minc = c
		}
		if r+1 > maxr {
			maxr = r + 1
		}
		if c+1 > maxc {
			maxc = c + 1
		}
		for _, d := range neighbors8 {
			nr, nc := r+d[0], c+d[1]
			if nr < 0 || nr >= height || nc < 0 || nc >= width {
				continue
			}
			if visited[nr][nc] || !at(mask, nr, nc) {
				continue
			}
			visited[nr][nc] = true
			queue = append(queue, [2]int{nr, nc})
		}
	}

	h, w := maxr-minr, maxc-minc
	cropped := make([][]bool, h)
	for i := range cropped {
		cropped[i] = make([]bool, w)
	}
	for _, p := range pixels {
		cropped[p[0]-minr][p[1]-minc] = true
	}

	return iidfile.LabeledComponent{
		MinR: minr, MinC: minc, MaxR: maxr, MaxC: maxc,
		Mask: cropped,
	}
}
