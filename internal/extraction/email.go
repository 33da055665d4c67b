package extraction

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	quotedLineRe    = regexp.MustCompile(`(?m)^[ \t]*>.*$`)
	signatureLineRe = regexp.MustCompile(`(?m)^[ \t]*--.*$`)
	bodyStartRe     = regexp.MustCompile(`(?i)(termsheet details|termsheet|key highlights|below are.*details)`)
	signOffRe       = regexp.MustCompile(`(?i)\b(thank you|thanks|regards|warm regards|best regards|sincerely)\b`)
	subjectTradeRe  = regexp.MustCompile(`TRADE-\S+`)
	emailKeyPrefix  = regexp.MustCompile(`^(?:\d+\.|[•\-*])\s*`)
)

// extractEmail handles an RFC 822 message whose subject mentions a
// termsheet. Each "key: value" (or "key - value") line of the relevant body
// block becomes a field.
func (e *Extractor) extractEmail(doc Document) (*Result, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(doc.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse email: %w", ErrUnreadableDocument, err)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	if !strings.Contains(strings.ToLower(subject), "termsheet") {
		return nil, fmt.Errorf("%w: subject %q", ErrNotTermsheet, subject)
	}

	body, err := messageText(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	pairs, order := emailPairs(relevantBody(body))
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no key-value lines in email %q", ErrEmptyDocument, subject)
	}

	res := &Result{
		Record: pairs,
		Source: strings.ReplaceAll(subject, " ", "_"),
		Blocks: 1,
	}
	res.TradeID = emailTradeID(pairs, order, subject)
	if res.TradeID == "" {
		res.TradeID = e.fallbackID("EMAIL")
		res.SynthesizedID = true
	}
	return res, nil
}

func decodeHeader(v string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

// messageText returns the text/plain body of a message, falling back to
// the text of a text/html part.
func messageText(contentType, encoding string, body io.Reader) (string, error) {
	plain, html, err := collectParts(contentType, encoding, body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(plain) != "" {
		return plain, nil
	}
	if html != "" {
		return htmlText(html)
	}
	return "", ErrEmptyDocument
}

func collectParts(contentType, encoding string, body io.Reader) (plain, html string, err error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse content type: %w", err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", "", fmt.Errorf("failed to read multipart body: %w", err)
			}
			if strings.HasPrefix(strings.ToLower(part.Header.Get("Content-Disposition")), "attachment") {
				continue
			}
			p, h, err := collectParts(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", "", err
			}
			if plain == "" {
				plain = p
			}
			if html == "" {
				html = h
			}
		}
		return plain, html, nil
	}

	data, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return "", "", fmt.Errorf("failed to read email body: %w", err)
	}
	switch mediaType {
	case "text/plain":
		return string(data), "", nil
	case "text/html":
		return "", string(data), nil
	default:
		return "", "", nil
	}
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}

// htmlText keeps block boundaries as line breaks so each table row or
// paragraph stays on its own line.
func htmlText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html body: %w", err)
	}

	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return doc.Text(), nil
}

// relevantBody drops quoted replies and signatures, starts after the
// termsheet anchor, and stops at the first sign-off.
func relevantBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = quotedLineRe.ReplaceAllString(body, "")
	body = signatureLineRe.ReplaceAllString(body, "")

	if loc := bodyStartRe.FindStringIndex(body); loc != nil {
		body = body[loc[1]:]
	}
	if loc := signOffRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	return strings.TrimSpace(body)
}

// emailPairs splits each line on the first ':' or, failing that, the first
// '-'. The returned order is the order keys first appeared in.
func emailPairs(text string) (map[string]string, []string) {
	pairs := make(map[string]string)
	var order []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = emailKeyPrefix.ReplaceAllString(line, "")

		var key, value string
		if i := strings.Index(line, ":"); i >= 0 {
			key, value = line[:i], line[i+1:]
		} else if i := strings.Index(line, "-"); i >= 0 {
			key, value = line[:i], line[i+1:]
		} else {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))
		if key == "" || value == "" {
			continue
		}
		if _, seen := pairs[key]; !seen {
			order = append(order, key)
		}
		pairs[key] = value
	}
	return pairs, order
}

// emailTradeID prefers a body field named like "trade id", then a TRADE-
// token in the subject.
func emailTradeID(pairs map[string]string, order []string, subject string) string {
	for _, key := range order {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "trade") && strings.Contains(lower, "id") {
			return pairs[key]
		}
	}
	return subjectTradeRe.FindString(subject)
}
