package gcode

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

type Parser struct {
	br   *bufio.Reader
	line int
}

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

// Line returns the number of the last line read.
func (p *Parser) Line() int { return p.line }

func (p *Parser) Read() (ln Block, err error) {
	for {
		s, err := p.br.ReadString('\n')
		if s != "" {
			p.line++
		}
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}

		s = strings.TrimSpace(stripComment(s))
		if s == "" {
			continue
		}

		return parseLine(s)
	}
}

// stripComment removes `;` and `( )` comments outside of quoted strings.
func stripComment(s string) string {
	var sb strings.Builder
	var inQuote, inParen bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inParen:
			inParen = c != ')'
			continue
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == ';':
			return sb.String()
		case c == '(':
			inParen = true
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isLetter(c byte) bool { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }

func parseLine(s string) (Block, error) {
	if len(s) > 1 && isLetter(s[0]) && isLetter(s[1]) {
		return nil, errors.New("unsupported meta command: " + s)
	}

	var res Block
	for i := 0; i < len(s); {
		c := s[i]
		if c == ' ' || c == '\t' {
			i++
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return nil, errors.New("invalid or unhandled line: " + s)
		}
		i++

		w := Word{W: c}
		start := i
		switch {
		case i < len(s) && s[i] == '"':
			end, err := scanQuoted(s, i)
			if err != nil {
				return nil, err
			}
			w.Raw, i = s[start:end], end
		case i < len(s) && s[i] == '{':
			end, err := scanBraces(s, i)
			if err != nil {
				return nil, err
			}
			w.Raw, i = s[start:end], end
		default:
			for i < len(s) && strings.IndexByte("0123456789.+-", s[i]) >= 0 {
				i++
			}
			if start == i {
				w.Bare = true
				break
			}
			val, err := strconv.ParseFloat(s[start:i], 64)
			if err != nil {
				return nil, errors.New("invalid number in line: " + s)
			}
			w.Arg = val
		}
		res = append(res, w)
	}

	return res, nil
}

// scanQuoted returns the index just past the closing quote of the string
// starting at s[i]. A doubled quote is an escaped quote.
func scanQuoted(s string, i int) (int, error) {
	for j := i + 1; j < len(s); j++ {
		if s[j] != '"' {
			continue
		}
		if j+1 < len(s) && s[j+1] == '"' {
			j++
			continue
		}
		return j + 1, nil
	}
	return 0, errors.New("unterminated string in line: " + s)
}

func scanBraces(s string, i int) (int, error) {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j + 1, nil
			}
		}
	}
	return 0, errors.New("unterminated expression in line: " + s)
}
