package tilemap

import (
	"errors"
	"fmt"
	"slices"
)

// ErrRectLimit is returned when occupied cells remain after the limit.
var ErrRectLimit = errors.New("tilemap: collision rectangle limit reached")

// Decompose covers the occupied cells of a row-major width x height grid with
// disjoint rectangles, in tile units.
//
// The first occupied cell in row-major order becomes a corner; the run of
// occupied cells to its right fixes the width, and the rectangle grows down
// one row at a time while the same span is fully occupied. Consumed cells are
// cleared and the scan starts again. Rectangles come out in discovery order.
// The grid is not modified.
//
// When limit rectangles have been emitted and occupied cells remain, the
// rectangles found so far are returned with ErrRectLimit.
func Decompose(grid []bool, width, height, limit int) ([]Rect, error) {
	if width < 0 || height < 0 || len(grid) != width*height {
		return nil, fmt.Errorf("tilemap: grid has %d cells, want %dx%d", len(grid), width, height)
	}

	cells := slices.Clone(grid)
	var rects []Rect

	// Every cell before the last corner plus its first-row run is already
	// free, so resuming there finds the same corner a scan from the top would.
	start := 0
	for {
		corner := slices.Index(cells[start:], true)
		if corner < 0 {
			return rects, nil
		}
		corner += start

		if len(rects) >= limit {
			return rects, ErrRectLimit
		}

		x, y := corner%width, corner/width
		w := 0
		for x+w < width && cells[corner+w] {
			cells[corner+w] = false
			w++
		}

		h := 1
		for row := y + 1; row < height; row++ {
			span := cells[row*width+x : row*width+x+w]
			if slices.Contains(span, false) {
				break
			}
			clear(span)
			h++
		}

		rects = append(rects, Rect{X: uint32(x), Y: uint32(y), W: uint32(w), H: uint32(h)})
		start = corner + w
	}
}
