package board

import "fmt"

// RangeEmptyCells returns the unoccupied cells reachable from p under the
// shape. With ignoreObstacles it is the empty subset of RangeCells. With
// obstacles blocking it walks outward from p's cell using the shape's step
// set, never expanding through an occupied cell; line shapes instead cast
// four rays that stop at the first occupied or out-of-bounds cell.
func (b *Board) RangeEmptyCells(p Piece, s Shape, ignoreObstacles bool) ([]Cell, error) {
	if ignoreObstacles {
		cells, err := b.RangeCells(p, s)
		if err != nil {
			return nil, err
		}
		out := cells[:0]
		for _, c := range cells {
			if b.cells[c.X][c.Y] == 0 {
				out = append(out, c)
			}
		}
		return out, nil
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	if w, h := p.Footprint(); w != 1 || h != 1 {
		return nil, fmt.Errorf("shape: blocked search requires 1x1 footprint, got %dx%d", w, h)
	}
	if s.Min != 1 {
		return nil, fmt.Errorf("shape: blocked search requires min=1, got %d", s.Min)
	}

	if s.Kind == Line {
		return b.castRays(p.Pos(), s.Max), nil
	}

	steps, err := stepSet(s.Kind)
	if err != nil {
		return nil, err
	}
	start := p.Pos()
	visited := map[Cell]struct{}{start: {}}
	frontier := []Cell{start}
	var out []Cell
	for hop := 1; hop <= s.Max && len(frontier) > 0; hop++ {
		var next []Cell
		for _, c := range frontier {
			for _, st := range steps {
				n := Cell{X: c.X + st[0], Y: c.Y + st[1]}
				if !b.InBounds(n.X, n.Y) {
					continue
				}
				if _, ok := visited[n]; ok {
					continue
				}
				visited[n] = struct{}{}
				if b.cells[n.X][n.Y] != 0 {
					continue // blocked: not a result, not expandable
				}
				out = append(out, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	sortCells(out)
	return out, nil
}

func (b *Board) castRays(from Cell, max int) []Cell {
	dirs := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	var out []Cell
	for _, d := range dirs {
		for i := 1; i <= max; i++ {
			x, y := from.X+d[0]*i, from.Y+d[1]*i
			if !b.InBounds(x, y) || b.cells[x][y] != 0 {
				break
			}
			out = append(out, Cell{X: x, Y: y})
		}
	}
	sortCells(out)
	return out
}

func stepSet(kind ShapeKind) ([][2]int, error) {
	switch kind {
	case Manhattan:
		return [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}, nil
	case Chebyshev:
		return [][2]int{
			{1, 0}, {-1, 0}, {0, 1}, {0, -1},
			{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
		}, nil
	case Diagonal:
		return [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}, nil
	case Knight:
		out := make([][2]int, len(knightOffsets))
		for i, o := range knightOffsets {
			out[i] = o
		}
		return out, nil
	}
	return nil, fmt.Errorf("shape: no step set for kind %q", kind)
}
