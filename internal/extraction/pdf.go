package extraction

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
)

// pdfPages returns the text of each page, one block per page, keeping line
// breaks so label heuristics can stop at the end of a line.
func pdfPages(content []byte) ([]string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	pages := make([]string, 0, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			pages = append(pages, "")
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", pageNr, err)
		}
		pages = append(pages, contentStreamText(data))
	}
	return pages, nil
}

// contentStreamText interprets the text-showing and text-positioning
// operators of a page content stream.
func contentStreamText(data []byte) string {
	var (
		sb       strings.Builder
		operands []pdfOperand
	)
	newline := func() {
		s := sb.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			sb.WriteByte('\n')
		}
	}

	lex := pdfLexer{data: data}
	for {
		tok, ok := lex.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok.pdfOperand)
			continue
		}

		switch tok.text {
		case "Tj":
			if s, ok := lastString(operands); ok {
				sb.WriteString(pdfText(s))
			}
		case "'", `"`:
			newline()
			if s, ok := lastString(operands); ok {
				sb.WriteString(pdfText(s))
			}
		case "TJ":
			if n := len(operands); n > 0 && operands[n-1].kind == tokArray {
				for _, el := range operands[n-1].array {
					switch el.kind {
					case tokString:
						sb.WriteString(pdfText(el.text))
					case tokNumber:
						// Large negative kerning is how generators encode a word gap.
						if f, err := strconv.ParseFloat(el.text, 64); err == nil && f < -200 {
							sb.WriteByte(' ')
						}
					}
				}
			}
		case "Td", "TD":
			if n := len(operands); n >= 2 && !isZero(operands[n-1].text) {
				newline()
			} else if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case "T*", "Tm", "ET":
			newline()
		}
		operands = operands[:0]
	}

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func isZero(num string) bool {
	f, err := strconv.ParseFloat(num, 64)
	return err == nil && f == 0
}

// pdfText maps single-byte WinAnsi strings (the default for standard fonts)
// to UTF-8 so bullets and currency signs survive.
func pdfText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.Windows1252.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}

func lastString(operands []pdfOperand) (string, bool) {
	if n := len(operands); n > 0 && operands[n-1].kind == tokString {
		return operands[n-1].text, true
	}
	return "", false
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokArray
	tokOther
	tokOperator
)

type pdfOperand struct {
	kind  tokenKind
	text  string
	array []pdfOperand
}

type pdfToken struct {
	pdfOperand
}

type pdfLexer struct {
	data []byte
	pos  int
}

func (l *pdfLexer) next() (pdfToken, bool) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return pdfToken{}, false
	}

	c := l.data[l.pos]
	switch {
	case c == '(':
		return pdfToken{pdfOperand{kind: tokString, text: l.literalString()}}, true
	case c == '<' && l.peek(1) == '<':
		l.pos += 2
		return pdfToken{pdfOperand{kind: tokOther, text: "<<"}}, true
	case c == '>' && l.peek(1) == '>':
		l.pos += 2
		return pdfToken{pdfOperand{kind: tokOther, text: ">>"}}, true
	case c == '<':
		return pdfToken{pdfOperand{kind: tokString, text: l.hexString()}}, true
	case c == '[':
		l.pos++
		var arr []pdfOperand
		for {
			l.skipSpace()
			if l.pos >= len(l.data) {
				break
			}
			if l.data[l.pos] == ']' {
				l.pos++
				break
			}
			tok, ok := l.next()
			if !ok {
				break
			}
			arr = append(arr, tok.pdfOperand)
		}
		return pdfToken{pdfOperand{kind: tokArray, array: arr}}, true
	case c == '/':
		start := l.pos
		l.pos++
		l.readRegular()
		return pdfToken{pdfOperand{kind: tokName, text: string(l.data[start:l.pos])}}, true
	case c == '%':
		for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
			l.pos++
		}
		return l.next()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		start := l.pos
		l.readRegular()
		return pdfToken{pdfOperand{kind: tokNumber, text: string(l.data[start:l.pos])}}, true
	case c == ']' || c == ')' || c == '>' || c == '{' || c == '}':
		l.pos++
		return pdfToken{pdfOperand{kind: tokOther, text: string(c)}}, true
	default:
		start := l.pos
		l.readRegular()
		if l.pos == start {
			l.pos++
		}
		op := string(l.data[start:l.pos])
		if op == "true" || op == "false" || op == "null" {
			return pdfToken{pdfOperand{kind: tokOther, text: op}}, true
		}
		return pdfToken{pdfOperand{kind: tokOperator, text: op}}, true
	}
}

func (l *pdfLexer) peek(offset int) byte {
	if l.pos+offset < len(l.data) {
		return l.data[l.pos+offset]
	}
	return 0
}

func (l *pdfLexer) skipSpace() {
	for l.pos < len(l.data) && isPDFSpace(l.data[l.pos]) {
		l.pos++
	}
}

func (l *pdfLexer) readRegular() {
	for l.pos < len(l.data) && !isPDFSpace(l.data[l.pos]) && !isPDFDelimiter(l.data[l.pos]) {
		l.pos++
	}
}

// literalString reads a balanced (...) string and decodes escapes.
func (l *pdfLexer) literalString() string {
	l.pos++
	depth := 1
	start := l.pos
	for l.pos < len(l.data) {
		switch l.data[l.pos] {
		case '\\':
			l.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				raw := l.data[start:l.pos]
				l.pos++
				return decodePDFString(raw)
			}
		}
		l.pos++
	}
	return decodePDFString(l.data[start:])
}

func (l *pdfLexer) hexString() string {
	l.pos++
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		b, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return ""
		}
		out = append(out, byte(b))
	}
	return string(out)
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

// decodePDFString handles the escape sequences of PDF literal strings.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b', 'f':
		case '\n':
			// line continuation
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}
