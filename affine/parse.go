// Copyright 2025 go-mmagen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package affine

import (
	"strconv"
	"unicode"

	"github.com/pkg/errors"
)

// Parse reads a map in textual form:
//
//	(d0, d1, d2) -> (d0, d2)
//	(i, j)[n] -> (i * 4 + n, j)
//
// Dimension and symbol names are bound positionally by the leading lists.
// Expressions support +, *, parentheses and (possibly negative) integers.
func Parse(s string) (Map, error) {
	p := &parser{src: s}
	m, err := p.parseMap()
	if err != nil {
		return Map{}, errors.Wrapf(err, "parsing affine map %q", s)
	}
	return m, nil
}

// MustParse is Parse that panics on error, for tables and tests.
func MustParse(s string) Map {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

type parser struct {
	src  string
	pos  int
	dims map[string]int
	syms map[string]int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(tok string) error {
	p.skipSpace()
	if len(p.src)-p.pos < len(tok) || p.src[p.pos:p.pos+len(tok)] != tok {
		return errors.Errorf("expected %q at offset %d", tok, p.pos)
	}
	p.pos += len(tok)
	return nil
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := rune(p.src[p.pos])
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			break
		}
		p.pos++
	}
	if start == p.pos || unicode.IsDigit(rune(p.src[start])) {
		return "", errors.Errorf("expected identifier at offset %d", start)
	}
	return p.src[start:p.pos], nil
}

// nameList parses "(a, b, c)" or "[a, b]" binding names to positions.
func (p *parser) nameList(open, closing string) (map[string]int, error) {
	names := make(map[string]int)
	if err := p.expect(open); err != nil {
		return nil, err
	}
	if p.peek() == closing[0] {
		p.pos++
		return names, nil
	}
	for {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if _, dup := names[name]; dup {
			return nil, errors.Errorf("duplicate name %q", name)
		}
		names[name] = len(names)
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if err := p.expect(closing); err != nil {
			return nil, err
		}
		return names, nil
	}
}

func (p *parser) parseMap() (Map, error) {
	var err error
	if p.dims, err = p.nameList("(", ")"); err != nil {
		return Map{}, err
	}
	p.syms = map[string]int{}
	if p.peek() == '[' {
		if p.syms, err = p.nameList("[", "]"); err != nil {
			return Map{}, err
		}
	}
	for name := range p.syms {
		if _, clash := p.dims[name]; clash {
			return Map{}, errors.Errorf("%q bound as both dim and symbol", name)
		}
	}
	if err := p.expect("->"); err != nil {
		return Map{}, err
	}
	if err := p.expect("("); err != nil {
		return Map{}, err
	}
	var results []Expr
	if p.peek() != ')' {
		for {
			e, err := p.parseSum()
			if err != nil {
				return Map{}, err
			}
			results = append(results, e)
			if p.peek() == ',' {
				p.pos++
				continue
			}
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return Map{}, err
	}
	if p.peek() != 0 {
		return Map{}, errors.Errorf("trailing input at offset %d", p.pos)
	}
	return NewMap(len(p.dims), len(p.syms), results...), nil
}

func (p *parser) parseSum() (Expr, error) {
	lhs, err := p.parseProduct()
	if err != nil {
		return Expr{}, err
	}
	for p.peek() == '+' {
		p.pos++
		rhs, err := p.parseProduct()
		if err != nil {
			return Expr{}, err
		}
		lhs = Add(lhs, rhs)
	}
	return lhs, nil
}

func (p *parser) parseProduct() (Expr, error) {
	lhs, err := p.parseAtom()
	if err != nil {
		return Expr{}, err
	}
	for p.peek() == '*' {
		p.pos++
		rhs, err := p.parseAtom()
		if err != nil {
			return Expr{}, err
		}
		lhs = Mul(lhs, rhs)
	}
	return lhs, nil
}

func (p *parser) parseAtom() (Expr, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		e, err := p.parseSum()
		if err != nil {
			return Expr{}, err
		}
		return e, p.expect(")")
	case c == '-' || (c >= '0' && c <= '9'):
		start := p.pos
		if c == '-' {
			p.pos++
		}
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		v, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
		if err != nil {
			return Expr{}, errors.Wrapf(err, "bad integer at offset %d", start)
		}
		return Constant(v), nil
	}
	name, err := p.ident()
	if err != nil {
		return Expr{}, err
	}
	if pos, ok := p.dims[name]; ok {
		return Dim(pos), nil
	}
	if pos, ok := p.syms[name]; ok {
		return Symbol(pos), nil
	}
	return Expr{}, errors.Errorf("unknown identifier %q", name)
}
