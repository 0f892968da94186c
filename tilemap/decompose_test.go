package tilemap

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func gridFromRows(rows [][]int) ([]bool, int, int) {
	height := len(rows)
	width := 0
	if height > 0 {
		width = len(rows[0])
	}
	grid := make([]bool, 0, width*height)
	for _, row := range rows {
		for _, v := range row {
			grid = append(grid, v > 0)
		}
	}
	return grid, width, height
}

func render(rects []Rect, width, height int) []bool {
	grid := make([]bool, width*height)
	for _, r := range rects {
		for y := r.Y; y < r.Y+r.H; y++ {
			for x := r.X; x < r.X+r.W; x++ {
				grid[int(y)*width+int(x)] = true
			}
		}
	}
	return grid
}

func TestDecompose(t *testing.T) {
	cases := []struct {
		name string
		rows [][]int
		want []Rect
	}{
		{
			name: "square_block",
			rows: [][]int{{1, 1, 0}, {1, 1, 0}, {0, 0, 0}},
			want: []Rect{{X: 0, Y: 0, W: 2, H: 2}},
		},
		{
			name: "empty",
			rows: [][]int{{0, 0}, {0, 0}},
			want: nil,
		},
		{
			name: "l_shape",
			rows: [][]int{{1, 1, 1}, {1, 0, 0}},
			want: []Rect{{X: 0, Y: 0, W: 3, H: 1}, {X: 0, Y: 1, W: 1, H: 1}},
		},
		{
			name: "wider_row_below",
			rows: [][]int{{1, 0}, {1, 1}},
			want: []Rect{{X: 0, Y: 0, W: 1, H: 2}, {X: 1, Y: 1, W: 1, H: 1}},
		},
		{
			name: "hole_stops_extension",
			rows: [][]int{{1, 1}, {1, 0}, {1, 1}},
			want: []Rect{{X: 0, Y: 0, W: 2, H: 1}, {X: 0, Y: 1, W: 1, H: 2}, {X: 1, Y: 2, W: 1, H: 1}},
		},
		{
			name: "full_grid",
			rows: [][]int{{2, 1, 3}, {1, 1, 1}},
			want: []Rect{{X: 0, Y: 0, W: 3, H: 2}},
		},
		{
			name: "separate_runs_in_one_row",
			rows: [][]int{{1, 0, 1}, {1, 0, 1}},
			want: []Rect{{X: 0, Y: 0, W: 1, H: 2}, {X: 2, Y: 0, W: 1, H: 2}},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			grid, w, h := gridFromRows(c.rows)
			got, err := Decompose(grid, w, h, MaxCollisionRects)
			if err != nil {
				t.Fatalf("Decompose returned error: %v", err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("rects mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecompose_ScaledScenario(t *testing.T) {
	grid, w, h := gridFromRows([][]int{{1, 1, 0}, {1, 1, 0}, {0, 0, 0}})
	rects, err := Decompose(grid, w, h, MaxCollisionRects)
	if err != nil {
		t.Fatalf("Decompose returned error: %v", err)
	}
	if len(rects) != 1 {
		t.Fatalf("expected 1 rect, got %d", len(rects))
	}
	if got, want := rects[0].Scale(8), (Rect{X: 0, Y: 0, W: 16, H: 16}); got != want {
		t.Fatalf("scaled rect = %+v, want %+v", got, want)
	}
}

func TestDecompose_DoesNotModifyInput(t *testing.T) {
	grid, w, h := gridFromRows([][]int{{1, 1}, {1, 1}})
	before := append([]bool(nil), grid...)
	if _, err := Decompose(grid, w, h, MaxCollisionRects); err != nil {
		t.Fatalf("Decompose returned error: %v", err)
	}
	if diff := cmp.Diff(before, grid); diff != "" {
		t.Fatalf("input grid modified:\n%s", diff)
	}
}

func TestDecompose_Limit(t *testing.T) {
	grid, w, h := gridFromRows([][]int{{1, 0, 1, 0, 1}})

	rects, err := Decompose(grid, w, h, 2)
	if !errors.Is(err, ErrRectLimit) {
		t.Fatalf("expected ErrRectLimit, got %v", err)
	}
	if len(rects) != 2 {
		t.Fatalf("expected the 2 rects found before the limit, got %d", len(rects))
	}

	rects, err = Decompose(grid, w, h, 3)
	if err != nil {
		t.Fatalf("limit equal to the rect count should succeed, got %v", err)
	}
	if len(rects) != 3 {
		t.Fatalf("expected 3 rects, got %d", len(rects))
	}
}

func TestDecompose_BadGrid(t *testing.T) {
	if _, err := Decompose(make([]bool, 5), 2, 2, MaxCollisionRects); err == nil {
		t.Fatalf("expected an error for a grid of the wrong size")
	}
}

func TestDecompose_RandomGrids(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		w := 1 + rng.Intn(24)
		h := 1 + rng.Intn(24)
		density := rng.Float64()
		grid := make([]bool, w*h)
		for j := range grid {
			grid[j] = rng.Float64() < density
		}

		rects, err := Decompose(grid, w, h, MaxCollisionRects)
		if err != nil {
			t.Fatalf("grid %d: Decompose returned error: %v", i, err)
		}

		coverage := make([]int, w*h)
		for _, r := range rects {
			if r.W == 0 || r.H == 0 {
				t.Fatalf("grid %d: empty rect %+v", i, r)
			}
			for y := r.Y; y < r.Y+r.H; y++ {
				for x := r.X; x < r.X+r.W; x++ {
					coverage[int(y)*w+int(x)]++
				}
			}
		}
		for j, occupied := range grid {
			want := 0
			if occupied {
				want = 1
			}
			if coverage[j] != want {
				t.Fatalf("grid %d: cell %d covered %d times, occupied=%v", i, j, coverage[j], occupied)
			}
		}

		again, err := Decompose(render(rects, w, h), w, h, MaxCollisionRects)
		if err != nil {
			t.Fatalf("grid %d: second Decompose returned error: %v", i, err)
		}
		if diff := cmp.Diff(render(rects, w, h), render(again, w, h)); diff != "" {
			t.Fatalf("grid %d: re-decomposition changed coverage:\n%s", i, diff)
		}
	}
}
