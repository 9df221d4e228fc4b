// Package board implements the grid the match is played on: cell occupancy,
// footprint placement, and shape-based range queries. Coordinates are
// 1-indexed; an entity's anchor is the top-left cell of its footprint.
package board

import "fmt"

// Cell is a 1-indexed grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Piece is the board's view of anything occupying cells. Footprint returns
// oriented dimensions (already transposed when the piece is rotated) so the
// board never tracks orientation itself.
type Piece interface {
	UID() int64
	Pos() Cell
	SetPos(Cell)
	Footprint() (w, h int)
}

// Board holds a width×height occupancy matrix of uids. Zero means empty.
// A cell holds at most one uid; a footprint rectangle is either entirely
// empty or entirely owned by one piece.
type Board struct {
	width  int
	height int
	cells  [][]int64 // cells[x][y], both 1-indexed
}

func New(width, height int) (*Board, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("board: invalid size %dx%d", width, height)
	}
	b := &Board{width: width, height: height, cells: make([][]int64, width+1)}
	for x := 1; x <= width; x++ {
		b.cells[x] = make([]int64, height+1)
	}
	return b, nil
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

func (b *Board) InBounds(x, y int) bool {
	return x >= 1 && x <= b.width && y >= 1 && y <= b.height
}

// UIDAt returns the occupant uid at (x, y), or 0 for empty or out of bounds.
func (b *Board) UIDAt(x, y int) int64 {
	if !b.InBounds(x, y) {
		return 0
	}
	return b.cells[x][y]
}

// Place writes p's footprint anchored at (x, y). It fails without mutation
// if any footprint cell is out of bounds or occupied.
func (b *Board) Place(p Piece, x, y int) bool {
	w, h := p.Footprint()
	if !b.areaFree(x, y, w, h) {
		return false
	}
	b.fill(x, y, w, h, p.UID())
	p.SetPos(Cell{X: x, Y: y})
	return true
}

// Move relocates p to (x, y). On failure the original footprint is restored
// and the board is left exactly as it was.
func (b *Board) Move(p Piece, x, y int) bool {
	w, h := p.Footprint()
	old := p.Pos()
	b.fill(old.X, old.Y, w, h, 0)
	if !b.areaFree(x, y, w, h) {
		b.fill(old.X, old.Y, w, h, p.UID())
		return false
	}
	b.fill(x, y, w, h, p.UID())
	p.SetPos(Cell{X: x, Y: y})
	return true
}

// Swap exchanges the positions of two pieces with equal oriented footprints.
func (b *Board) Swap(p, q Piece) bool {
	pw, ph := p.Footprint()
	qw, qh := q.Footprint()
	if pw != qw || ph != qh {
		return false
	}
	pp, qp := p.Pos(), q.Pos()
	b.fill(pp.X, pp.Y, pw, ph, q.UID())
	b.fill(qp.X, qp.Y, qw, qh, p.UID())
	p.SetPos(qp)
	q.SetPos(pp)
	return true
}

// Remove clears p's footprint. The piece keeps its last position.
func (b *Board) Remove(p Piece) {
	w, h := p.Footprint()
	pos := p.Pos()
	b.fill(pos.X, pos.Y, w, h, 0)
}

// Snapshot returns a flattened row-major copy of the occupancy matrix.
// Used by the state digest and by tests asserting no partial mutation.
func (b *Board) Snapshot() []int64 {
	out := make([]int64, 0, b.width*b.height)
	for y := 1; y <= b.height; y++ {
		for x := 1; x <= b.width; x++ {
			out = append(out, b.cells[x][y])
		}
	}
	return out
}

func (b *Board) areaFree(x, y, w, h int) bool {
	for i := x; i < x+w; i++ {
		for j := y; j < y+h; j++ {
			if !b.InBounds(i, j) || b.cells[i][j] != 0 {
				return false
			}
		}
	}
	return true
}

func (b *Board) fill(x, y, w, h int, uid int64) {
	for i := x; i < x+w; i++ {
		for j := y; j < y+h; j++ {
			if b.InBounds(i, j) {
				b.cells[i][j] = uid
			}
		}
	}
}
