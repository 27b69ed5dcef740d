package field

import (
	"bytes"
	"strings"
)

// scanner walks the token structure of a field file just far enough to find
// the internalField entry. Everything it skips is left untouched.
type scanner struct {
	buf []byte
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.buf) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.buf[s.pos]
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			s.pos++
		case c == '/' && s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '/':
			s.skipLine()
		case c == '/' && s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '*':
			end := bytes.Index(s.buf[s.pos+2:], []byte("*/"))
			if end < 0 {
				s.pos = len(s.buf)
				return
			}
			s.pos += end + 4
		default:
			return
		}
	}
}

func (s *scanner) skipLine() {
	for s.pos < len(s.buf) && s.buf[s.pos] != '\n' {
		s.pos++
	}
}

func isWordByte(c byte) bool {
	return c > ' ' && c < 0x7f && !strings.ContainsRune(";{}()[]\"", rune(c))
}

func (s *scanner) word() string {
	start := s.pos
	for s.pos < len(s.buf) && isWordByte(s.buf[s.pos]) {
		s.pos++
	}
	return string(s.buf[start:s.pos])
}

func (s *scanner) skipString() {
	s.pos++ // opening quote
	for s.pos < len(s.buf) {
		switch s.buf[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '"':
			s.pos++
			return
		}
		s.pos++
	}
}

// value returns the raw text up to the terminating semicolon at depth zero
// and consumes the semicolon.
func (s *scanner) value() (string, error) {
	s.skipSpace()
	start := s.pos
	for s.pos < len(s.buf) {
		switch s.buf[s.pos] {
		case '"':
			s.skipString()
			continue
		case ';':
			raw := strings.TrimSpace(string(s.buf[start:s.pos]))
			s.pos++
			return raw, nil
		case '{', '}':
			return "", malformed("unexpected %q in header entry at offset %d", s.buf[s.pos], s.pos)
		}
		s.pos++
	}
	return "", malformed("unterminated header entry at offset %d", start)
}

// skipEntry consumes the value of a top level entry whose keyword has
// already been read: either a braced dictionary or anything up to ';'.
func (s *scanner) skipEntry() error {
	start := s.pos
	depth := 0
	for {
		s.skipSpace()
		if s.eof() {
			return malformed("unterminated entry at offset %d", start)
		}
		switch c := s.buf[s.pos]; c {
		case '"':
			s.skipString()
			continue
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
			if depth < 0 {
				return malformed("unbalanced %q at offset %d", c, s.pos)
			}
			if depth == 0 && c == '}' {
				s.pos++
				return nil
			}
		case ';':
			if depth == 0 {
				s.pos++
				return nil
			}
		}
		s.pos++
	}
}
