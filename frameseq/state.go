package frameseq

import (
	"fmt"
	"math"
)

// Unset marks a state value that has not been given.
const Unset = -1

// State is carried from line to line within one file. Dimensions and
// positions are in grid cells when the matching grid axis is set, in pixels
// otherwise.
type State struct {
	FrameWidth  int32
	FrameHeight int32
	GridWidth   int32
	GridHeight  int32
	// Row and Column are mutually exclusive; setting one unsets the other.
	Row    int32
	Column int32
	// Offsets shift the positions read from frame tuples, never Row or Column.
	RowOffset    int32
	ColumnOffset int32
}

func DefaultState() State {
	return State{
		FrameWidth:  Unset,
		FrameHeight: Unset,
		GridWidth:   Unset,
		GridHeight:  Unset,
		Row:         Unset,
		Column:      Unset,
	}
}

func (s *State) SetFrameWidth(v int32)  { s.FrameWidth = positiveOrUnset(v) }
func (s *State) SetFrameHeight(v int32) { s.FrameHeight = positiveOrUnset(v) }

func (s *State) SetGrid(w, h int32) {
	s.GridWidth = positiveOrUnset(w)
	s.GridHeight = positiveOrUnset(h)
}

func (s *State) SetRow(v int32) {
	if v < 0 {
		s.Row = Unset
		return
	}
	s.Row = v
	s.Column = Unset
}

func (s *State) SetColumn(v int32) {
	if v < 0 {
		s.Column = Unset
		return
	}
	s.Column = v
	s.Row = Unset
}

func positiveOrUnset(v int32) int32 {
	if v <= 0 {
		return Unset
	}
	return v
}

func (s *State) gridX() int64 {
	if s.GridWidth > 0 {
		return int64(s.GridWidth)
	}
	return 1
}

func (s *State) gridY() int64 {
	if s.GridHeight > 0 {
		return int64(s.GridHeight)
	}
	return 1
}

type slot uint8

const (
	slotX slot = iota
	slotY
	slotW
	slotH
)

// slots lists, in tuple order, the frame components the state leaves open.
func (s *State) slots() []slot {
	var out []slot
	switch {
	case s.Column >= 0:
		out = append(out, slotY)
	case s.Row >= 0:
		out = append(out, slotX)
	default:
		out = append(out, slotX, slotY)
	}
	if s.FrameWidth <= 0 {
		out = append(out, slotW)
	}
	if s.FrameHeight <= 0 {
		out = append(out, slotH)
	}
	return out
}

// template is the frame every tuple starts from.
func (s *State) template() (Frame, error) {
	var f Frame
	var err error
	if s.FrameWidth > 0 {
		if f.W, err = pixel(int64(s.FrameWidth), s.gridX()); err != nil {
			return f, err
		}
	}
	if s.FrameHeight > 0 {
		if f.H, err = pixel(int64(s.FrameHeight), s.gridY()); err != nil {
			return f, err
		}
	}
	if s.Column >= 0 {
		f.X, err = pixel(int64(s.Column), s.gridX())
	} else if s.Row >= 0 {
		f.Y, err = pixel(int64(s.Row), s.gridY())
	}
	return f, err
}

// fill stores tuple value v into the component named by sl.
func (s *State) fill(f *Frame, sl slot, v uint32) error {
	var err error
	switch sl {
	case slotX:
		f.X, err = pixel(int64(v)+int64(s.ColumnOffset), s.gridX())
	case slotY:
		f.Y, err = pixel(int64(v)+int64(s.RowOffset), s.gridY())
	case slotW:
		f.W, err = pixel(int64(v), s.gridX())
	case slotH:
		f.H, err = pixel(int64(v), s.gridY())
	}
	return err
}

// pixel scales v by the grid factor g, which is at least 1.
func pixel(v, g int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32/g {
		return 0, fmt.Errorf("frame component %d x %d out of range", v, g)
	}
	return uint32(v * g), nil
}
