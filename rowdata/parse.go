package rowdata

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ErrParse is returned when a type string cannot be parsed.
var ErrParse = errors.New("cannot parse logical type")

// ParseRowType parses a SQL-style row type such as
//
//	ROW<id BIGINT NOT NULL, ts TIME(6), outer ROW<inner BIGINT>>
//
// Field names may be quoted with backticks.
func ParseRowType(s string) (*RowType, error) {
	p := &typeParser{src: s}
	p.next()
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q after type", p.tok.text)
	}
	if t.Root() != RowRoot {
		return nil, errors.Wrapf(ErrParse, "%q is not a ROW type", s)
	}
	return t.RowType(), nil
}

// ParseLogicalType parses a single logical type string.
func ParseLogicalType(s string) (LogicalType, error) {
	p := &typeParser{src: s}
	p.next()
	t, err := p.parseType()
	if err != nil {
		return LogicalType{}, err
	}
	if p.tok.kind != tokEOF {
		return LogicalType{}, p.errorf("unexpected %q after type", p.tok.text)
	}
	return t, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuoted
	tokNumber
	tokSymbol
	tokInvalid
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type typeParser struct {
	src string
	off int
	tok token
}

func (p *typeParser) errorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrParse, "at offset %d: "+format, append([]interface{}{p.tok.pos}, args...)...)
}

func (p *typeParser) next() {
	for p.off < len(p.src) && unicode.IsSpace(rune(p.src[p.off])) {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	c := p.src[p.off]
	switch {
	case c == '`':
		end := strings.IndexByte(p.src[p.off+1:], '`')
		if end < 0 {
			p.tok = token{kind: tokInvalid, text: p.src[start:], pos: start}
			p.off = len(p.src)
			return
		}
		p.tok = token{kind: tokQuoted, text: p.src[p.off+1 : p.off+1+end], pos: start}
		p.off += end + 2
	case isIdentStart(c):
		for p.off < len(p.src) && isIdentPart(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	case c >= '0' && c <= '9':
		for p.off < len(p.src) && p.src[p.off] >= '0' && p.src[p.off] <= '9' {
			p.off++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.off], pos: start}
	case strings.IndexByte("<>(),", c) >= 0:
		p.off++
		p.tok = token{kind: tokSymbol, text: string(c), pos: start}
	default:
		p.off++
		p.tok = token{kind: tokInvalid, text: string(c), pos: start}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (p *typeParser) expect(symbol string) error {
	if p.tok.kind != tokSymbol || p.tok.text != symbol {
		return p.errorf("expected %q, got %q", symbol, p.tok.text)
	}
	p.next()
	return nil
}

func (p *typeParser) keyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *typeParser) parseType() (LogicalType, error) {
	if p.tok.kind != tokIdent {
		return LogicalType{}, p.errorf("expected type name, got %q", p.tok.text)
	}
	name := strings.ToUpper(p.tok.text)
	p.next()

	var t LogicalType
	switch name {
	case "TINYINT":
		t = TinyInt()
	case "SMALLINT":
		t = SmallInt()
	case "INT", "INTEGER":
		t = Int()
	case "BIGINT":
		t = BigInt()
	case "FLOAT", "REAL":
		t = Float()
	case "DOUBLE":
		if p.keyword("PRECISION") {
			p.next()
		}
		t = Double()
	case "BOOLEAN", "BOOL":
		t = Boolean()
	case "STRING", "VARCHAR", "CHAR":
		if _, err := p.parseParams(); err != nil {
			return LogicalType{}, err
		}
		t = String()
	case "BYTES", "VARBINARY", "BINARY":
		if _, err := p.parseParams(); err != nil {
			return LogicalType{}, err
		}
		t = Bytes()
	case "DATE":
		t = Date()
	case "TIME":
		params, err := p.parseParams()
		if err != nil {
			return LogicalType{}, err
		}
		precision := 0
		if len(params) > 0 {
			precision = params[0]
		}
		if precision > MaxTimePrecision {
			return LogicalType{}, errors.Wrapf(ErrInvalidType, "TIME precision %d exceeds %d", precision, MaxTimePrecision)
		}
		t = Time(precision)
	case "TIMESTAMP":
		params, err := p.parseParams()
		if err != nil {
			return LogicalType{}, err
		}
		t = Timestamp()
		if len(params) > 0 {
			t.precision = params[0]
		}
	case "DECIMAL", "NUMERIC":
		if _, err := p.parseParams(); err != nil {
			return LogicalType{}, err
		}
		t = Decimal()
	case "ROW":
		rt, err := p.parseRowBody()
		if err != nil {
			return LogicalType{}, err
		}
		t = Row(rt)
	default:
		return LogicalType{}, errors.Wrapf(ErrParse, "unknown type %q", name)
	}

	if p.keyword("NOT") {
		p.next()
		if !p.keyword("NULL") {
			return LogicalType{}, p.errorf("expected NULL after NOT")
		}
		p.next()
		t = t.NotNull()
	} else if p.keyword("NULL") {
		p.next()
	}
	return t, nil
}

// parseParams reads an optional "(n[, m])" list.
func (p *typeParser) parseParams() ([]int, error) {
	if p.tok.kind != tokSymbol || p.tok.text != "(" {
		return nil, nil
	}
	p.next()
	var params []int
	for {
		if p.tok.kind != tokNumber {
			return nil, p.errorf("expected number, got %q", p.tok.text)
		}
		n, err := strconv.Atoi(p.tok.text)
		if err != nil {
			return nil, errors.Wrap(ErrParse, err.Error())
		}
		params = append(params, n)
		p.next()
		if p.tok.kind == tokSymbol && p.tok.text == "," {
			p.next()
			continue
		}
		break
	}
	return params, p.expect(")")
}

func (p *typeParser) parseRowBody() (*RowType, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	var fields []RowField
	for !(p.tok.kind == tokSymbol && p.tok.text == ">") {
		if len(fields) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		if p.tok.kind != tokIdent && p.tok.kind != tokQuoted {
			return nil, p.errorf("expected field name, got %q", p.tok.text)
		}
		name := p.tok.text
		p.next()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, NewField(name, t))
	}
	p.next()
	return NewRowType(fields...)
}
