package calculator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrDivisionByZero is returned for x/0 and x%0.
var ErrDivisionByZero = errors.New("division by zero")

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenPercent
	tokenCaret
	tokenLParen
	tokenRParen
	tokenComma
	tokenEOF
)

var tokenNames = map[tokenKind]string{
	tokenNumber:  "number",
	tokenIdent:   "identifier",
	tokenPlus:    "+",
	tokenMinus:   "-",
	tokenStar:    "*",
	tokenSlash:   "/",
	tokenPercent: "%",
	tokenCaret:   "^",
	tokenLParen:  "(",
	tokenRParen:  ")",
	tokenComma:   ",",
	tokenEOF:     "end of expression",
}

func (k tokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind  tokenKind
	value string
	pos   int
}

var singleChar = map[rune]tokenKind{
	'+': tokenPlus,
	'-': tokenMinus,
	'*': tokenStar,
	'/': tokenSlash,
	'%': tokenPercent,
	'^': tokenCaret,
	'(': tokenLParen,
	')': tokenRParen,
	',': tokenComma,
}

func lex(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)

	for pos := 0; pos < len(runes); {
		ch := runes[pos]
		switch {
		case unicode.IsSpace(ch):
			pos++
		case unicode.IsDigit(ch) || ch == '.':
			start := pos
			for pos < len(runes) && (unicode.IsDigit(runes[pos]) || runes[pos] == '.') {
				pos++
			}
			if pos < len(runes) && (runes[pos] == 'e' || runes[pos] == 'E') {
				next := pos + 1
				if next < len(runes) && (runes[next] == '+' || runes[next] == '-') {
					next++
				}
				if next < len(runes) && unicode.IsDigit(runes[next]) {
					pos = next
					for pos < len(runes) && unicode.IsDigit(runes[pos]) {
						pos++
					}
				}
			}
			tokens = append(tokens, token{kind: tokenNumber, value: string(runes[start:pos]), pos: start})
		case unicode.IsLetter(ch) || ch == '_':
			start := pos
			for pos < len(runes) && (unicode.IsLetter(runes[pos]) || unicode.IsDigit(runes[pos]) || runes[pos] == '_') {
				pos++
			}
			tokens = append(tokens, token{kind: tokenIdent, value: string(runes[start:pos]), pos: start})
		default:
			kind, ok := singleChar[ch]
			if !ok {
				return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), pos)
			}
			tokens = append(tokens, token{kind: kind, value: string(ch), pos: pos})
			pos++
		}
	}

	return append(tokens, token{kind: tokenEOF, pos: len(runes)}), nil
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var functions = map[string]func(args []float64) (float64, error){
	"sqrt": unary(func(x float64) (float64, error) {
		if x < 0 {
			return 0, fmt.Errorf("sqrt of negative number %v", x)
		}
		return math.Sqrt(x), nil
	}),
	"abs":   unary(func(x float64) (float64, error) { return math.Abs(x), nil }),
	"floor": unary(func(x float64) (float64, error) { return math.Floor(x), nil }),
	"ceil":  unary(func(x float64) (float64, error) { return math.Ceil(x), nil }),
	"round": unary(func(x float64) (float64, error) { return math.Round(x), nil }),
	"min":   variadic(math.Min),
	"max":   variadic(math.Max),
}

func unary(fn func(float64) (float64, error)) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		return fn(args[0])
	}
}

func variadic(fold func(a, b float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) == 0 {
			return 0, fmt.Errorf("expects at least 1 argument")
		}
		acc := args[0]
		for _, v := range args[1:] {
			acc = fold(acc, v)
		}
		return acc, nil
	}
}

// Evaluate computes an arithmetic expression.
//
// Precedence, low to high:
//  1. + -
//  2. * / %
//  3. unary -, unary +
//  4. ^ (right associative)
//  5. numbers, constants, function calls, parentheses
func Evaluate(expression string) (float64, error) {
	if strings.TrimSpace(expression) == "" {
		return 0, fmt.Errorf("expression cannot be empty")
	}

	tokens, err := lex(expression)
	if err != nil {
		return 0, err
	}

	p := &parser{tokens: tokens}
	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	if tok := p.current(); tok.kind != tokenEOF {
		return 0, fmt.Errorf("unexpected %s at position %d", tok.kind, tok.pos)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return value, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) current() token {
	if p.pos >= len(p.tokens) {
		return token{kind: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) error {
	tok := p.current()
	if tok.kind != kind {
		return fmt.Errorf("expected %s but got %s at position %d", kind, tok.kind, tok.pos)
	}
	p.advance()
	return nil
}

func (p *parser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for p.current().kind == tokenPlus || p.current().kind == tokenMinus {
		op := p.advance()
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op.kind == tokenPlus {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *parser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		kind := p.current().kind
		if kind != tokenStar && kind != tokenSlash && kind != tokenPercent {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch kind {
		case tokenStar:
			left *= right
		case tokenSlash:
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left /= right
		case tokenPercent:
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	switch p.current().kind {
	case tokenMinus:
		p.advance()
		v, err := p.parseUnary()
		return -v, err
	case tokenPlus:
		p.advance()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if p.current().kind != tokenCaret {
		return base, nil
	}
	p.advance()
	// The exponent may itself carry a sign: 2^-1.
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *parser) parsePrimary() (float64, error) {
	tok := p.current()
	switch tok.kind {
	case tokenNumber:
		p.advance()
		v, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q at position %d", tok.value, tok.pos)
		}
		return v, nil

	case tokenLParen:
		p.advance()
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if err := p.expect(tokenRParen); err != nil {
			return 0, err
		}
		return v, nil

	case tokenIdent:
		p.advance()
		name := strings.ToLower(tok.value)
		if p.current().kind == tokenLParen {
			return p.parseCall(name, tok.pos)
		}
		if v, ok := constants[name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown identifier %q at position %d", tok.value, tok.pos)
	}

	return 0, fmt.Errorf("unexpected %s at position %d", tok.kind, tok.pos)
}

func (p *parser) parseCall(name string, pos int) (float64, error) {
	fn, ok := functions[name]
	if !ok {
		return 0, fmt.Errorf("unknown function %q at position %d", name, pos)
	}
	p.advance()

	var args []float64
	if p.current().kind != tokenRParen {
		for {
			v, err := p.parseSum()
			if err != nil {
				return 0, err
			}
			args = append(args, v)
			if p.current().kind != tokenComma {
				break
			}
			p.advance()
		}
	}
	if err := p.expect(tokenRParen); err != nil {
		return 0, err
	}

	v, err := fn(args)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
