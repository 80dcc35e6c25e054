package asm

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokAtom
	tokString
)

type token struct {
	kind tokenKind
	text string
	line int
}

// tokenize splits WebAssembly text into parens, atoms and decoded string
// literals. Line comments (;;) and nestable block comments ((; ;)) are
// dropped.
func tokenize(src string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], ";;"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "(;"):
			start := line
			depth := 0
			for {
				if i >= len(src) {
					return nil, fmt.Errorf("unterminated block comment starting on line %d", start)
				}
				switch {
				case strings.HasPrefix(src[i:], "(;"):
					depth++
					i += 2
				case strings.HasPrefix(src[i:], ";)"):
					depth--
					i += 2
				default:
					if src[i] == '\n' {
						line++
					}
					i++
				}
				if depth == 0 {
					break
				}
			}
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", line: line})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", line: line})
			i++
		case c == '"':
			s, n, err := readString(src[i:], line)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, line: line})
			i += n
		default:
			start := i
			for i < len(src) && !isDelimiter(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokAtom, text: src[start:i], line: line})
		}
	}
	return toks, nil
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '(', ')', '"', ';':
		return true
	}
	return false
}

// readString decodes the literal at the start of s and returns it with
// the number of bytes consumed.
func readString(s string, line int) (string, int, error) {
	var sb strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return sb.String(), i + 1, nil
		case '\n':
			return "", 0, fmt.Errorf("newline in string literal on line %d", line)
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("unterminated string literal on line %d", line)
			}
			switch e := s[i+1]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\'', '\\':
				sb.WriteByte(e)
			default:
				if i+2 >= len(s) {
					return "", 0, fmt.Errorf("invalid escape in string literal on line %d", line)
				}
				b, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
				if err != nil {
					return "", 0, fmt.Errorf("invalid escape in string literal on line %d", line)
				}
				sb.WriteByte(byte(b))
				i++
			}
			i += 2
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal on line %d", line)
}

// node is an s-expression: a list, or a single atom or string.
type node struct {
	list   []*node
	isList bool
	tok    token
	line   int
}

// head is the leading keyword of a list, or "".
func (n *node) head() string {
	if !n.isList || len(n.list) == 0 || n.list[0].isList || n.list[0].tok.kind != tokAtom {
		return ""
	}
	return n.list[0].tok.text
}

func (n *node) isAtom() bool { return !n.isList && n.tok.kind == tokAtom }

func (n *node) isString() bool { return !n.isList && n.tok.kind == tokString }

func parseSExprs(toks []token) ([]*node, error) {
	var stack [][]*node
	var lines []int
	var top []*node
	for _, t := range toks {
		switch t.kind {
		case tokLParen:
			stack = append(stack, top)
			lines = append(lines, t.line)
			top = nil
		case tokRParen:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected ')' on line %d", t.line)
			}
			n := &node{list: top, isList: true, line: lines[len(lines)-1]}
			top = append(stack[len(stack)-1], n)
			stack = stack[:len(stack)-1]
			lines = lines[:len(lines)-1]
		default:
			top = append(top, &node{tok: t, line: t.line})
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed '(' opened on line %d", lines[len(lines)-1])
	}
	return top, nil
}
