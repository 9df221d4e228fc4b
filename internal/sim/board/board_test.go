package board

import (
	"reflect"
	"testing"
)

type testPiece struct {
	uid  int64
	pos  Cell
	w, h int
}

func (p *testPiece) UID() int64          { return p.uid }
func (p *testPiece) Pos() Cell           { return p.pos }
func (p *testPiece) SetPos(c Cell)       { p.pos = c }
func (p *testPiece) Footprint() (int, int) { return p.w, p.h }

func newTestBoard(t *testing.T, w, h int) *Board {
	t.Helper()
	b, err := New(w, h)
	if err != nil {
		t.Fatalf("New(%d,%d): %v", w, h, err)
	}
	return b
}

func TestBoard_PlaceRejectsOverlapAndBounds(t *testing.T) {
	b := newTestBoard(t, 5, 5)
	a := &testPiece{uid: 1, w: 2, h: 2}
	if !b.Place(a, 2, 2) {
		t.Fatalf("place a")
	}
	o := &testPiece{uid: 2, w: 2, h: 2}
	if b.Place(o, 3, 3) {
		t.Fatalf("overlapping place should fail")
	}
	if b.Place(o, 5, 5) {
		t.Fatalf("out-of-bounds place should fail")
	}
	if got := b.UIDAt(3, 3); got != 1 {
		t.Fatalf("UIDAt(3,3)=%d want 1", got)
	}
	if got := b.UIDAt(4, 4); got != 0 {
		t.Fatalf("failed place mutated board: UIDAt(4,4)=%d", got)
	}
}

func TestBoard_PlaceThenRemoveRestoresEmpty(t *testing.T) {
	b := newTestBoard(t, 6, 6)
	empty := b.Snapshot()

	p := &testPiece{uid: 7, w: 2, h: 3}
	if !b.Place(p, 3, 2) {
		t.Fatalf("place")
	}
	b.Remove(p)
	if got := b.Snapshot(); !reflect.DeepEqual(got, empty) {
		t.Fatalf("remove did not restore empty board")
	}
}

func TestBoard_MoveInvalidDestinationUnchanged(t *testing.T) {
	b := newTestBoard(t, 6, 6)
	a := &testPiece{uid: 1, w: 1, h: 1}
	o := &testPiece{uid: 2, w: 1, h: 1}
	if !b.Place(a, 2, 2) || !b.Place(o, 4, 2) {
		t.Fatalf("setup placement")
	}
	before := b.Snapshot()

	if b.Move(a, 4, 2) {
		t.Fatalf("move onto occupied cell should fail")
	}
	if b.Move(a, 9, 9) {
		t.Fatalf("move out of bounds should fail")
	}
	if a.Pos() != (Cell{X: 2, Y: 2}) {
		t.Fatalf("failed move changed position: %+v", a.Pos())
	}
	if got := b.Snapshot(); !reflect.DeepEqual(got, before) {
		t.Fatalf("failed move mutated occupancy")
	}

	if !b.Move(a, 3, 3) {
		t.Fatalf("legal move failed")
	}
	if got := b.UIDAt(2, 2); got != 0 {
		t.Fatalf("old cell still occupied: %d", got)
	}
	if got := b.UIDAt(3, 3); got != 1 {
		t.Fatalf("new cell not occupied: %d", got)
	}
}

func TestBoard_SwapExchangesEqualFootprints(t *testing.T) {
	b := newTestBoard(t, 8, 8)
	a := &testPiece{uid: 1, w: 2, h: 2}
	o := &testPiece{uid: 2, w: 2, h: 2}
	if !b.Place(a, 1, 1) || !b.Place(o, 5, 5) {
		t.Fatalf("setup placement")
	}
	if !b.Swap(a, o) {
		t.Fatalf("swap equal footprints failed")
	}
	if a.Pos() != (Cell{X: 5, Y: 5}) || o.Pos() != (Cell{X: 1, Y: 1}) {
		t.Fatalf("positions not exchanged: a=%+v o=%+v", a.Pos(), o.Pos())
	}
	if b.UIDAt(1, 1) != 2 || b.UIDAt(6, 6) != 1 {
		t.Fatalf("occupancy not exchanged")
	}

	small := &testPiece{uid: 3, w: 1, h: 1}
	if !b.Place(small, 8, 8) {
		t.Fatalf("place small")
	}
	if b.Swap(a, small) {
		t.Fatalf("swap with unequal footprints should fail")
	}
}

func TestBoard_UIDAtOutOfBounds(t *testing.T) {
	b := newTestBoard(t, 3, 3)
	for _, c := range []Cell{{0, 1}, {1, 0}, {4, 1}, {1, 4}} {
		if got := b.UIDAt(c.X, c.Y); got != 0 {
			t.Fatalf("UIDAt(%d,%d)=%d want 0", c.X, c.Y, got)
		}
	}
}
