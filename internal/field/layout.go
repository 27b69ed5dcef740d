package field

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// Format is the encoding of the internalField array.
type Format int

const (
	// ASCII arrays are whitespace separated decimal text.
	ASCII Format = iota
	// Binary arrays are raw IEEE-754 values between the list parentheses.
	Binary
)

func (f Format) String() string {
	if f == Binary {
		return "binary"
	}
	return "ascii"
}

// Kind is the rank of a field's entries.
type Kind int

const (
	Scalar Kind = iota
	Vector
	SymmTensor
	Tensor
	SphericalTensor
)

var kindNames = map[string]Kind{
	"scalar":          Scalar,
	"vector":          Vector,
	"symmTensor":      SymmTensor,
	"tensor":          Tensor,
	"sphericalTensor": SphericalTensor,
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Width returns the number of scalar components per entry.
func (k Kind) Width() int {
	switch k {
	case Vector:
		return 3
	case SymmTensor:
		return 6
	case Tensor:
		return 9
	default:
		return 1
	}
}

func kindForWidth(w int) (Kind, bool) {
	switch w {
	case 1:
		return Scalar, true
	case 3:
		return Vector, true
	case 6:
		return SymmTensor, true
	case 9:
		return Tensor, true
	}
	return Scalar, false
}

// header holds the FoamFile entries the codec cares about.
type header struct {
	format     Format
	order      binary.ByteOrder
	scalarSize int
	class      string
	object     string
}

func defaultHeader() header {
	return header{format: ASCII, order: binary.LittleEndian, scalarSize: 8}
}

// layout describes where the internalField array lives in the file.
type layout struct {
	header
	kind    Kind
	uniform bool
	tuple   bool // entries are parenthesised
	count   int  // number of entries
	start   int  // first byte of the mutable span
	end     int  // one past the last byte of the mutable span
	values  []float64
}

// locate parses the file up to and including the internalField entry.
func locate(buf []byte) (layout, error) {
	s := &scanner{buf: buf}
	hdr := defaultHeader()
	for {
		s.skipSpace()
		if s.eof() {
			return layout{}, malformed("internalField not found")
		}
		if s.peek() == '#' {
			s.skipLine()
			continue
		}
		key := s.word()
		if key == "" {
			return layout{}, malformed("unexpected %q at offset %d", s.peek(), s.pos)
		}
		switch key {
		case "FoamFile":
			if err := s.parseHeader(&hdr); err != nil {
				return layout{}, err
			}
		case "internalField":
			return s.parseInternalField(hdr)
		default:
			if err := s.skipEntry(); err != nil {
				return layout{}, err
			}
		}
	}
}

func (s *scanner) parseHeader(hdr *header) error {
	s.skipSpace()
	if s.peek() != '{' {
		return malformed("FoamFile header must be a dictionary")
	}
	s.pos++
	for {
		s.skipSpace()
		if s.eof() {
			return malformed("unterminated FoamFile header")
		}
		if s.peek() == '}' {
			s.pos++
			return nil
		}
		key := s.word()
		if key == "" {
			return malformed("unexpected %q in FoamFile header", s.peek())
		}
		raw, err := s.value()
		if err != nil {
			return err
		}
		val := strings.Trim(raw, "\"")
		switch key {
		case "format":
			switch val {
			case "ascii":
				hdr.format = ASCII
			case "binary":
				hdr.format = Binary
			default:
				return malformed("unknown format %q", val)
			}
		case "arch":
			if err := hdr.applyArch(val); err != nil {
				return err
			}
		case "class":
			hdr.class = val
		case "object":
			hdr.object = val
		}
	}
}

// applyArch reads an arch string such as "LSB;label=32;scalar=64".
func (h *header) applyArch(arch string) error {
	for _, part := range strings.Split(arch, ";") {
		part = strings.TrimSpace(part)
		switch {
		case part == "LSB":
			h.order = binary.LittleEndian
		case part == "MSB":
			h.order = binary.BigEndian
		case strings.HasPrefix(part, "scalar="):
			switch strings.TrimPrefix(part, "scalar=") {
			case "64":
				h.scalarSize = 8
			case "32":
				h.scalarSize = 4
			default:
				return malformed("unsupported scalar size in arch %q", arch)
			}
		}
	}
	return nil
}

func (s *scanner) parseInternalField(hdr header) (layout, error) {
	s.skipSpace()
	switch kw := s.word(); kw {
	case "uniform":
		return s.parseUniform(hdr)
	case "nonuniform":
		return s.parseNonuniform(hdr)
	default:
		return layout{}, malformed("expected uniform or nonuniform after internalField, got %q", kw)
	}
}

// parseEntry reads one bare number or one parenthesised tuple.
func (s *scanner) parseEntry() ([]float64, bool, error) {
	s.skipSpace()
	if s.peek() != '(' {
		w := s.word()
		v, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return nil, false, malformed("bad number %q at offset %d", w, s.pos)
		}
		return []float64{v}, false, nil
	}
	s.pos++
	var out []float64
	for {
		s.skipSpace()
		if s.eof() {
			return nil, true, malformed("unterminated tuple")
		}
		if s.peek() == ')' {
			s.pos++
			return out, true, nil
		}
		w := s.word()
		v, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return nil, true, malformed("bad number %q at offset %d", w, s.pos)
		}
		out = append(out, v)
	}
}

func (s *scanner) parseUniform(hdr header) (layout, error) {
	s.skipSpace()
	start := s.pos
	vals, tuple, err := s.parseEntry()
	if err != nil {
		return layout{}, err
	}
	end := s.pos
	s.skipSpace()
	if s.peek() != ';' {
		return layout{}, malformed("expected ';' after uniform value at offset %d", s.pos)
	}
	kind, ok := kindForWidth(len(vals))
	if !ok {
		return layout{}, malformed("uniform value with %d components", len(vals))
	}
	if tuple && len(vals) == 1 {
		kind = SphericalTensor
	}
	hdr.format = ASCII // uniform values are always written as text
	return layout{header: hdr, kind: kind, uniform: true, tuple: tuple, count: 1, start: start, end: end, values: vals}, nil
}

func parseListType(word string) (Kind, bool) {
	if !strings.HasPrefix(word, "List<") || !strings.HasSuffix(word, ">") {
		return Scalar, false
	}
	kind, ok := kindNames[strings.TrimSuffix(strings.TrimPrefix(word, "List<"), ">")]
	return kind, ok
}

func (s *scanner) parseNonuniform(hdr header) (layout, error) {
	s.skipSpace()
	typ := s.word()
	kind, ok := parseListType(typ)
	if !ok {
		return layout{}, malformed("unsupported list type %q", typ)
	}
	s.skipSpace()
	countWord := s.word()
	count, err := strconv.Atoi(countWord)
	if err != nil || count < 0 {
		return layout{}, malformed("bad list length %q", countWord)
	}
	s.skipSpace()
	switch s.peek() {
	case '(':
	case '{':
		return layout{}, malformed("compact uniform list form is not supported")
	default:
		return layout{}, malformed("expected '(' after list length at offset %d", s.pos)
	}
	s.pos++
	width := kind.Width()
	if hdr.format == Binary {
		start := s.pos
		if count > (len(s.buf)-start)/(width*hdr.scalarSize) {
			return layout{}, malformed("binary list of %d %s entries is truncated", count, kind)
		}
		end := start + count*width*hdr.scalarSize
		if end >= len(s.buf) || s.buf[end] != ')' {
			return layout{}, malformed("binary list of %d %s entries is truncated", count, kind)
		}
		return layout{header: hdr, kind: kind, count: count, start: start, end: end}, nil
	}
	start := s.pos
	// A component needs at least two bytes; the declared length is not trusted.
	capacity := (len(s.buf) - start) / 2
	if count <= capacity/width {
		capacity = count * width
	}
	vals := make([]float64, 0, capacity)
	tuple := width > 1
	for i := 0; i < count; i++ {
		entry, isTuple, err := s.parseEntry()
		if err != nil {
			return layout{}, err
		}
		if len(entry) != width {
			return layout{}, malformed("entry %d has %d components, want %d", i, len(entry), width)
		}
		if i == 0 {
			tuple = isTuple
		}
		vals = append(vals, entry...)
	}
	s.skipSpace()
	if s.peek() != ')' {
		return layout{}, malformed("list longer than declared length %d", count)
	}
	return layout{header: hdr, kind: kind, tuple: tuple, count: count, start: start, end: s.pos, values: vals}, nil
}
