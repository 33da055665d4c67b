package extraction

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const tradeIDKey = "Trade ID"

var (
	tradeIDPattern = regexp.MustCompile(`(?i:trade\s*id)\s*[:#]?\s*(TRADE-\S+)`)
	bulletPairRe   = regexp.MustCompile(`•\s*([^:•\n]+):\s*([^•\n]+)`)
	keyOrdinalRe   = regexp.MustCompile(`^\d+\.\s*`)
	keyBulletRe    = regexp.MustCompile(`^•\s*`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	trailingListRe = regexp.MustCompile(`\s+\d+\.(?:\s.*)?$`)
)

// labelMatcher holds the ordered pattern strategies for one expected label.
type labelMatcher struct {
	label      string
	strategies []*regexp.Regexp
}

func newLabelMatcher(label string) labelMatcher {
	l := regexp.QuoteMeta(label)
	if isWordByte(label[0]) {
		l = `\b` + l
	}
	if isWordByte(label[len(label)-1]) {
		l += `\b`
	}
	return labelMatcher{
		label: label,
		strategies: []*regexp.Regexp{
			regexp.MustCompile(`(?i)` + l + `[ \t]*:[ \t]*([^•\n]+)`),
			regexp.MustCompile(`(?i)•\s*` + l + `[ \t]*:?\s*([^•\n]+)`),
			regexp.MustCompile(`(?i)` + l + `\s*=\s*([^•\n]+)`),
			regexp.MustCompile(`(?i)` + l + `:?\s*([^•\n]+)`),
		},
	}
}

// match returns the first strategy's value that is longer than one character.
func (m labelMatcher) match(text string) (string, bool) {
	for _, re := range m.strategies {
		sub := re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		value := strings.TrimSpace(sub[1])
		if utf8.RuneCountInString(value) > 1 {
			return value, true
		}
	}
	return "", false
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// extractBlocks applies the label heuristics page by page. Targeted matches
// on later pages replace earlier ones; the generic bullet scan only fills
// labels nobody has captured yet.
func (e *Extractor) extractBlocks(ctx context.Context, blocks []string) (*Result, error) {
	pairs := make(map[string]string)
	var tradeID string

	for _, text := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if tradeID == "" {
			if m := tradeIDPattern.FindStringSubmatch(text); m != nil {
				tradeID = m[1]
				pairs[tradeIDKey] = tradeID
			}
		}

		for _, lm := range e.labels {
			if value, ok := lm.match(text); ok {
				pairs[lm.label] = value
			}
		}

		for _, m := range bulletPairRe.FindAllStringSubmatch(text, -1) {
			key := strings.TrimSpace(m[1])
			value := strings.TrimSpace(m[2])
			if key == "" || utf8.RuneCountInString(value) <= 1 {
				continue
			}
			if _, exists := pairs[key]; !exists {
				pairs[key] = value
			}
		}
	}

	res := &Result{
		TradeID: tradeID,
		Record:  cleanPairs(pairs),
		Blocks:  len(blocks),
	}
	if res.TradeID == "" {
		res.TradeID = e.fallbackID("DOC")
		res.SynthesizedID = true
	}
	return res, nil
}

// cleanPairs strips ordinal and bullet prefixes from keys, collapses
// whitespace in values, and cuts numbered-list remnants that bled into a
// value from the next list item. When several keys clean to the same label,
// a key that needed no cleaning wins; otherwise the lexically last one does.
func cleanPairs(pairs map[string]string) map[string]string {
	raw := make([]string, 0, len(pairs))
	for key := range pairs {
		raw = append(raw, key)
	}
	sort.Slice(raw, func(i, j int) bool {
		ci, cj := raw[i] == cleanKey(raw[i]), raw[j] == cleanKey(raw[j])
		if ci != cj {
			return cj
		}
		return raw[i] < raw[j]
	})

	cleaned := make(map[string]string, len(pairs))
	for _, key := range raw {
		k := cleanKey(key)
		v := whitespaceRe.ReplaceAllString(pairs[key], " ")
		v = strings.TrimSpace(v)
		v = trailingListRe.ReplaceAllString(v, "")

		if k != "" && utf8.RuneCountInString(v) > 1 {
			cleaned[k] = v
		}
	}
	return cleaned
}

func cleanKey(key string) string {
	k := keyOrdinalRe.ReplaceAllString(key, "")
	k = keyBulletRe.ReplaceAllString(k, "")
	return strings.TrimSpace(k)
}
