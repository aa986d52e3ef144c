package shape

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads a shape written in the notation produced by String.
func Parse(s string) (Shape, error) {
	p := parser{src: strings.TrimSpace(s)}
	out, err := p.shape()
	if err != nil {
		return Shape{}, fmt.Errorf("parse shape %q: %w", s, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Shape{}, fmt.Errorf("parse shape %q: trailing input at %d", s, p.pos)
	}
	return out, nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(s string) Shape {
	out, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return out
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return fmt.Errorf("expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) shape() (Shape, error) {
	p.skipSpace()
	if p.peek() == '(' {
		return p.tuple()
	}
	return p.array()
}

func (p *parser) tuple() (Shape, error) {
	if err := p.expect('('); err != nil {
		return Shape{}, err
	}
	var elems []Shape
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return MakeTuple(), nil
	}
	for {
		e, err := p.shape()
		if err != nil {
			return Shape{}, err
		}
		elems = append(elems, e)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return MakeTuple(elems...), nil
		default:
			return Shape{}, fmt.Errorf("expected ',' or ')' at %d", p.pos)
		}
	}
}

func (p *parser) array() (Shape, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdent(p.src[p.pos]) {
		p.pos++
	}
	dtype, err := ParseDType(p.src[start:p.pos])
	if err != nil {
		return Shape{}, err
	}
	if err := p.expect('['); err != nil {
		return Shape{}, err
	}
	var dims []int64
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return Make(dtype), nil
	}
	for {
		p.skipSpace()
		numStart := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		if numStart == p.pos {
			return Shape{}, fmt.Errorf("expected dimension at %d", p.pos)
		}
		d, err := strconv.ParseInt(p.src[numStart:p.pos], 10, 64)
		if err != nil {
			return Shape{}, err
		}
		dims = append(dims, d)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return Make(dtype, dims...), nil
		default:
			return Shape{}, fmt.Errorf("expected ',' or ']' at %d", p.pos)
		}
	}
}

func isIdent(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
