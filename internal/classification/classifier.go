// Package classification scores extracted records against the derivative
// type schemas by key-set similarity.
package classification

import (
	"math"
	"sort"

	"github.com/termsheet-validation/backend/internal/keys"
	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/schema"
)

// Score is the similarity of one record to one derivative type. All key
// lists are normalized and sorted.
type Score struct {
	Type              string   `json:"type"`
	MandatoryCoverage float64  `json:"mandatory_coverage"`
	JaccardScore      float64  `json:"jaccard_score"`
	MatchedMandatory  []string `json:"matched_mandatory_keys"`
	MissingMandatory  []string `json:"missing_mandatory_keys"`
	MatchedExpected   []string `json:"matched_expected_keys"`
	MissingExpected   []string `json:"missing_expected_keys"`
	ExtraInput        []string `json:"extra_input_keys"`
}

type Report struct {
	TradeID           string  `json:"trade_id,omitempty"`
	Version           int     `json:"version,omitempty"`
	Primary           string  `json:"primary"`
	Confidence        float64 `json:"confidence"`
	RankedByMandatory []Score `json:"ranked_by_mandatory"`
	RankedByJaccard   []Score `json:"ranked_by_jaccard"`
}

type Classifier struct {
	catalog *schema.Catalog
}

func New(catalog *schema.Catalog) *Classifier {
	return &Classifier{catalog: catalog}
}

// Classify never fails: a record without keys scores zero everywhere.
func (c *Classifier) Classify(rec record.Record) *Report {
	input := make(map[string]struct{})
	for _, k := range rec.AllKeys() {
		if n := keys.Normalize(k); n != "" {
			input[n] = struct{}{}
		}
	}

	types := c.catalog.Types()
	scores := make([]Score, 0, len(types))
	for _, t := range types {
		scores = append(scores, c.score(t, input))
	}

	report := &Report{
		RankedByMandatory: rank(scores, func(s Score) float64 { return s.MandatoryCoverage }),
		RankedByJaccard:   rank(scores, func(s Score) float64 { return s.JaccardScore }),
	}
	if len(report.RankedByMandatory) > 0 {
		top := report.RankedByMandatory[0]
		report.Primary = top.Type
		report.Confidence = round(top.MandatoryCoverage*100, 2)
	}
	return report
}

func (c *Classifier) score(t *schema.DerivativeType, input map[string]struct{}) Score {
	s := Score{Type: t.Name}

	if len(input) == 0 {
		s.MatchedMandatory = []string{}
		s.MissingMandatory = append([]string{}, t.Mandatory...)
		s.MatchedExpected = []string{}
		s.MissingExpected = append([]string{}, t.Expected...)
		s.ExtraInput = []string{}
		return s
	}

	resolver := c.catalog.Resolver()
	matched := make(map[string]struct{})
	contributing := make(map[string]struct{})
	for key := range input {
		canonical := key
		if !t.Expects(canonical) {
			alias, ok := resolver.Alias(key)
			if !ok || !t.Expects(alias) {
				continue
			}
			canonical = alias
		}
		matched[canonical] = struct{}{}
		contributing[key] = struct{}{}
	}

	for _, f := range t.Mandatory {
		if _, ok := matched[f]; ok {
			s.MatchedMandatory = append(s.MatchedMandatory, f)
		} else {
			s.MissingMandatory = append(s.MissingMandatory, f)
		}
	}
	for _, f := range t.Expected {
		if _, ok := matched[f]; ok {
			s.MatchedExpected = append(s.MatchedExpected, f)
		} else {
			s.MissingExpected = append(s.MissingExpected, f)
		}
	}
	for key := range input {
		if _, ok := contributing[key]; !ok {
			s.ExtraInput = append(s.ExtraInput, key)
		}
	}
	sort.Strings(s.ExtraInput)

	if len(t.Mandatory) == 0 {
		s.MandatoryCoverage = 1
	} else {
		s.MandatoryCoverage = round(float64(len(s.MatchedMandatory))/float64(len(t.Mandatory)), 4)
	}

	union := len(t.Expected)
	for key := range input {
		if !t.Expects(key) {
			union++
		}
	}
	if union > 0 {
		s.JaccardScore = round(float64(len(matched))/float64(union), 4)
	}

	s.MatchedMandatory = nonNil(s.MatchedMandatory)
	s.MissingMandatory = nonNil(s.MissingMandatory)
	s.MatchedExpected = nonNil(s.MatchedExpected)
	s.MissingExpected = nonNil(s.MissingExpected)
	s.ExtraInput = nonNil(s.ExtraInput)
	return s
}

// rank orders by metric descending, then by type name ascending.
func rank(scores []Score, metric func(Score) float64) []Score {
	out := append([]Score(nil), scores...)
	sort.SliceStable(out, func(i, j int) bool {
		mi, mj := metric(out[i]), metric(out[j])
		if mi != mj {
			return mi > mj
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
