package board

import (
	"fmt"
	"sort"
)

// ShapeKind selects the distance metric for a range query. The values match
// the blueprint data files.
type ShapeKind string

const (
	Chebyshev ShapeKind = "*" // max(dx, dy)
	Manhattan ShapeKind = "+" // dx + dy
	Line      ShapeKind = "-" // along a row or column only
	Diagonal  ShapeKind = "x" // diagonal steps, same-parity cells
	Knight    ShapeKind = "h" // the eight knight offsets
)

// Shape is a metric plus an inclusive distance band.
type Shape struct {
	Kind ShapeKind `json:"kind"`
	Min  int       `json:"min"`
	Max  int       `json:"max"`
}

// Validate rejects unknown kinds and inverted bands. Blueprint loading runs
// this so bad shape data fails at startup, not mid-combat.
func (s Shape) Validate() error {
	switch s.Kind {
	case Chebyshev, Manhattan, Line, Diagonal, Knight:
	default:
		return fmt.Errorf("shape: unknown kind %q", s.Kind)
	}
	if s.Min < 0 || s.Max < s.Min {
		return fmt.Errorf("shape: invalid band [%d,%d]", s.Min, s.Max)
	}
	return nil
}

var knightOffsets = [8][2]int{
	{1, 2}, {2, 1}, {2, -1}, {1, -2},
	{-1, -2}, {-2, -1}, {-2, 1}, {-1, 2},
}

// RangeCells returns every in-bounds cell whose nearest-edge distance from
// p's footprint falls inside the shape's band. Distances are measured to the
// closest cell of the footprint rectangle, so wide pieces reach farther than
// their anchor alone would.
func (b *Board) RangeCells(p Piece, s Shape) ([]Cell, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	w, h := p.Footprint()
	pos := p.Pos()

	if s.Kind == Knight {
		if w != 1 || h != 1 {
			return nil, fmt.Errorf("shape: knight requires 1x1 footprint, got %dx%d", w, h)
		}
		if s.Min != 1 || s.Max != 1 {
			return nil, fmt.Errorf("shape: knight requires min=max=1")
		}
		var out []Cell
		for _, off := range knightOffsets {
			x, y := pos.X+off[0], pos.Y+off[1]
			if b.InBounds(x, y) {
				out = append(out, Cell{X: x, Y: y})
			}
		}
		sortCells(out)
		return out, nil
	}
	if s.Kind == Diagonal && (w != 1 || h != 1) {
		return nil, fmt.Errorf("shape: diagonal requires 1x1 footprint, got %dx%d", w, h)
	}

	var out []Cell
	for x := pos.X - s.Max; x <= pos.X+w-1+s.Max; x++ {
		for y := pos.Y - s.Max; y <= pos.Y+h-1+s.Max; y++ {
			if !b.InBounds(x, y) {
				continue
			}
			dx, dy := edgeDelta(x, y, pos.X, pos.Y, w, h)
			if d, ok := shapeDistance(s.Kind, dx, dy); ok && d >= s.Min && d <= s.Max {
				out = append(out, Cell{X: x, Y: y})
			}
		}
	}
	sortCells(out)
	return out, nil
}

// RangeOccupiedCells filters RangeCells to cells holding a uid.
func (b *Board) RangeOccupiedCells(p Piece, s Shape) ([]Cell, error) {
	cells, err := b.RangeCells(p, s)
	if err != nil {
		return nil, err
	}
	out := cells[:0]
	for _, c := range cells {
		if b.cells[c.X][c.Y] != 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

// RangeOccupants returns the distinct uids occupying cells in range,
// ascending. A multi-cell piece appears once however many of its cells are
// in the band.
func (b *Board) RangeOccupants(p Piece, s Shape) ([]int64, error) {
	cells, err := b.RangeOccupiedCells(p, s)
	if err != nil {
		return nil, err
	}
	seen := map[int64]struct{}{}
	var out []int64
	for _, c := range cells {
		uid := b.cells[c.X][c.Y]
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// edgeDelta is the componentwise distance from (cx, cy) to the nearest cell
// of the w×h rectangle anchored at (px, py). Zero on an axis means the
// coordinate falls within the rectangle's span there.
func edgeDelta(cx, cy, px, py, w, h int) (dx, dy int) {
	switch {
	case cx < px:
		dx = px - cx
	case cx >= px+w:
		dx = cx - (px + w - 1)
	}
	switch {
	case cy < py:
		dy = py - cy
	case cy >= py+h:
		dy = cy - (py + h - 1)
	}
	return dx, dy
}

// shapeDistance classifies a nearest-edge delta under the given metric.
// ok=false means the cell is unreachable under that metric regardless of
// the band (off-row for line, wrong parity for diagonal).
func shapeDistance(kind ShapeKind, dx, dy int) (d int, ok bool) {
	switch kind {
	case Chebyshev:
		return maxInt(dx, dy), true
	case Manhattan:
		return dx + dy, true
	case Line:
		if (dx == 0) == (dy == 0) {
			return 0, false
		}
		return dx + dy, true
	case Diagonal:
		if (dx+dy)%2 != 0 {
			return 0, false
		}
		return maxInt(dx, dy), true
	}
	return 0, false
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].X != cells[j].X {
			return cells[i].X < cells[j].X
		}
		return cells[i].Y < cells[j].Y
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
