// Package frameseq compiles frame sequence text files into the bundle's
// frame sequence asset.
//
// Each line is either a directive that changes the parser state or a
// sequence definition:
//
//	width 16
//	height 16
//	grid 2 2
//	row 3
//	0.1 (0)(1)(2)(3)
//
// A sequence line starts with its duration in seconds, followed by one tuple
// per frame. Tuples only carry the components the current state leaves open,
// in x, y, w, h order; a set column fixes x, a set row fixes y, and a set
// frame width or height fixes w or h. When a single component is left the
// parentheses may be dropped.
package frameseq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// maxLineLength bounds a single line of input.
const maxLineLength = 1 << 20

const (
	cmdWidth        = "width"
	cmdHeight       = "height"
	cmdRow          = "row"
	cmdColumn       = "col"
	cmdGrid         = "grid"
	cmdRowOffset    = "row_off"
	cmdColumnOffset = "col_off"
)

type Frame struct {
	X, Y, W, H uint32
}

type Sequence struct {
	// Duration is in seconds.
	Duration float32
	Frames   []Frame
}

// Diagnostic describes a line that was discarded.
type Diagnostic struct {
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Message)
}

type Parser struct {
	State State

	log         zerolog.Logger
	diagnostics []Diagnostic
}

func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{
		State: DefaultState(),
		log:   logger,
	}
}

// Parse resets the state and reads every line of r. Malformed lines are
// logged, recorded as diagnostics and skipped; only read errors are returned.
func (p *Parser) Parse(r io.Reader) ([]Sequence, error) {
	p.State = DefaultState()
	p.diagnostics = nil

	sequences := []Sequence{}
	br := bufio.NewReader(r)
	line := 0
	for {
		raw, tooLong, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("frameseq: read line %d: %w", line+1, err)
		}
		line++
		if tooLong {
			p.diagnose(line, fmt.Errorf("line exceeds %d bytes", maxLineLength))
			continue
		}
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}

		seq, ok, err := p.parseLine(text)
		if err != nil {
			p.diagnose(line, err)
			continue
		}
		if ok {
			sequences = append(sequences, seq)
		}
	}
	return sequences, nil
}

// readLine returns the next line without its terminator. Lines longer than
// maxLineLength are consumed and reported as too long instead of returned.
func readLine(br *bufio.Reader) (string, bool, error) {
	var buf []byte
	tooLong, started := false, false
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && started {
				return string(buf), tooLong, nil
			}
			return "", false, err
		}
		started = true
		if !tooLong {
			if len(buf)+len(frag) > maxLineLength {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// Diagnostics returns the lines discarded by the last Parse call.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diagnostics
}

func (p *Parser) diagnose(line int, err error) {
	d := Diagnostic{Line: line, Message: err.Error()}
	p.diagnostics = append(p.diagnostics, d)
	p.log.Warn().Int("line", line).Msg("skipping line: " + d.Message)
}

// Parse reads r with a fresh Parser.
func Parse(r io.Reader, logger zerolog.Logger) ([]Sequence, error) {
	return NewParser(logger).Parse(r)
}

func (p *Parser) parseLine(text string) (Sequence, bool, error) {
	c := &cursor{s: text}
	if ch := c.peek(); isDigit(ch) || ch == '.' {
		seq, err := p.sequence(c)
		return seq, err == nil, err
	}
	return Sequence{}, false, p.directive(c)
}

func (p *Parser) directive(c *cursor) error {
	keyword := c.word()
	if keyword == "" {
		return fmt.Errorf("unexpected %q", c.peek())
	}

	var args []int32
	want := 1
	if keyword == cmdGrid {
		want = 2
	}
	switch keyword {
	case cmdWidth, cmdHeight, cmdRow, cmdColumn, cmdGrid, cmdRowOffset, cmdColumnOffset:
	default:
		return fmt.Errorf("unknown directive %q", keyword)
	}

	for len(args) < want {
		if !c.skipSpace() && !c.eof() {
			return fmt.Errorf("%s: unexpected %q", keyword, c.peek())
		}
		v, err := c.integer()
		if err != nil {
			return fmt.Errorf("%s: %w", keyword, err)
		}
		args = append(args, v)
	}
	c.skipSpace()
	if !c.eof() {
		return fmt.Errorf("%s: unexpected %q", keyword, c.rest())
	}

	switch keyword {
	case cmdWidth:
		p.State.SetFrameWidth(args[0])
	case cmdHeight:
		p.State.SetFrameHeight(args[0])
	case cmdRow:
		p.State.SetRow(args[0])
	case cmdColumn:
		p.State.SetColumn(args[0])
	case cmdGrid:
		p.State.SetGrid(args[0], args[1])
	case cmdRowOffset:
		p.State.RowOffset = args[0]
	case cmdColumnOffset:
		p.State.ColumnOffset = args[0]
	}
	return nil
}

type seqState uint8

const (
	// between tuples, or before the first one
	seqBetween seqState = iota
	// inside a tuple, components still open
	seqValue
	// inside a tuple, waiting for ')'
	seqClose
)

func (p *Parser) sequence(c *cursor) (Sequence, error) {
	duration, err := c.float()
	if err != nil {
		return Sequence{}, fmt.Errorf("duration: %w", err)
	}

	template, err := p.State.template()
	if err != nil {
		return Sequence{}, err
	}
	slots := p.State.slots()

	seq := Sequence{Duration: duration, Frames: []Frame{}}
	state := seqBetween
	var frame Frame
	filled := 0

	for !c.eof() {
		ch := c.peek()
		switch state {
		case seqBetween:
			switch {
			case isSpace(ch):
				c.pos++
			case ch == '(':
				c.pos++
				frame, filled = template, 0
				state = seqValue
			case isDigit(ch) && len(slots) == 1:
				v, err := c.unsigned()
				if err != nil {
					return Sequence{}, err
				}
				frame = template
				if err := p.State.fill(&frame, slots[0], v); err != nil {
					return Sequence{}, err
				}
				seq.Frames = append(seq.Frames, frame)
			default:
				return Sequence{}, fmt.Errorf("unexpected %q between frames", ch)
			}

		case seqValue:
			switch {
			case isSpace(ch) || ch == ',':
				c.pos++
			case isDigit(ch):
				v, err := c.unsigned()
				if err != nil {
					return Sequence{}, err
				}
				if err := p.State.fill(&frame, slots[filled], v); err != nil {
					return Sequence{}, err
				}
				filled++
				if filled == len(slots) {
					state = seqClose
				}
			case ch == ')':
				if filled == 0 {
					return Sequence{}, errors.New("empty frame tuple")
				}
				c.pos++
				seq.Frames = append(seq.Frames, frame)
				state = seqBetween
			default:
				return Sequence{}, fmt.Errorf("unexpected %q in frame tuple", ch)
			}

		case seqClose:
			switch {
			case isSpace(ch):
				c.pos++
			case ch == ')':
				c.pos++
				seq.Frames = append(seq.Frames, frame)
				state = seqBetween
			default:
				return Sequence{}, fmt.Errorf("unexpected %q, want ')'", ch)
			}
		}
	}

	if state != seqBetween {
		return Sequence{}, errors.New("line ends inside a frame tuple")
	}
	return seq, nil
}

// cursor walks a single trimmed line.
type cursor struct {
	s   string
	pos int
}

func (c *cursor) eof() bool {
	return c.pos >= len(c.s)
}

func (c *cursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.s[c.pos]
}

func (c *cursor) rest() string {
	return c.s[c.pos:]
}

// skipSpace reports whether any space was skipped.
func (c *cursor) skipSpace() bool {
	start := c.pos
	for !c.eof() && isSpace(c.s[c.pos]) {
		c.pos++
	}
	return c.pos > start
}

func (c *cursor) span(accept func(byte) bool) string {
	start := c.pos
	for !c.eof() && accept(c.s[c.pos]) {
		c.pos++
	}
	return c.s[start:c.pos]
}

func (c *cursor) word() string {
	return c.span(func(b byte) bool {
		return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
	})
}

func (c *cursor) integer() (int32, error) {
	start := c.pos
	if ch := c.peek(); ch == '-' || ch == '+' {
		c.pos++
	}
	if c.span(isDigit) == "" {
		c.pos = start
		return 0, errors.New("missing number")
	}
	v, err := strconv.ParseInt(c.s[start:c.pos], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", c.s[start:c.pos])
	}
	return int32(v), nil
}

func (c *cursor) unsigned() (uint32, error) {
	digits := c.span(isDigit)
	v, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid frame value %q", digits)
	}
	return uint32(v), nil
}

func (c *cursor) float() (float32, error) {
	start := c.pos
	c.span(func(b byte) bool { return isDigit(b) || b == '.' })
	if ch := c.peek(); ch == 'e' || ch == 'E' {
		mark := c.pos
		c.pos++
		if ch := c.peek(); ch == '-' || ch == '+' {
			c.pos++
		}
		if c.span(isDigit) == "" {
			c.pos = mark
		}
	}
	text := c.s[start:c.pos]
	v, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", text)
	}
	return float32(v), nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\v' || b == '\f'
}
