/*
Copyright 2024 The CDB Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sqlparser

import (
	"strings"
	"text/scanner"

	"github.com/clarkok/cdb/pkg/cdberrors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// lexer tokenizes a statement. Identifiers and numbers come from
// text/scanner; single-quoted string literals and the multi-rune
// comparison operators (<>, <=, >=) are handled by hand since
// text/scanner has no built-in notion of either.
type lexer struct {
	s    scanner.Scanner
	peek *token
}

func newLexer(src string) *lexer {
	l := &lexer{}
	l.s.Init(strings.NewReader(src))
	l.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	l.s.Whitespace = 1<<'\t' | 1<<'\n' | 1<<'\r' | 1<<' '
	l.s.Error = func(*scanner.Scanner, string) {}
	return l
}

func (l *lexer) peekTok() token {
	if l.peek == nil {
		t := l.scan()
		l.peek = &t
	}
	return *l.peek
}

func (l *lexer) next() token {
	if l.peek != nil {
		t := *l.peek
		l.peek = nil
		return t
	}
	return l.scan()
}

func (l *lexer) scan() token {
	r := l.s.Scan()
	switch r {
	case scanner.EOF:
		return token{kind: tokEOF}
	case scanner.Ident:
		return token{kind: tokIdent, text: l.s.TokenText()}
	case scanner.Int:
		return token{kind: tokInt, text: l.s.TokenText()}
	case scanner.Float:
		return token{kind: tokFloat, text: l.s.TokenText()}
	case '\'':
		return l.scanString()
	case '<', '>':
		return l.scanComparison(r)
	default:
		return token{kind: tokPunct, text: string(r)}
	}
}

func (l *lexer) scanString() token {
	var b strings.Builder
	for {
		r := l.s.Next()
		if r == scanner.EOF {
			break
		}
		if r == '\'' {
			break
		}
		b.WriteRune(r)
	}
	return token{kind: tokString, text: b.String()}
}

func (l *lexer) scanComparison(first rune) token {
	if l.s.Peek() == '=' {
		l.s.Next()
		return token{kind: tokPunct, text: string(first) + "="}
	}
	if first == '<' && l.s.Peek() == '>' {
		l.s.Next()
		return token{kind: tokPunct, text: "<>"}
	}
	return token{kind: tokPunct, text: string(first)}
}

func errUnexpected(t token) error {
	return cdberrors.NewParseError("unexpected token: " + describeToken(t))
}

func describeToken(t token) string {
	if t.kind == tokEOF {
		return "<eof>"
	}
	return t.text
}
