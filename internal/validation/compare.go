package validation

import (
	"strings"

	"github.com/termsheet-validation/backend/internal/record"
)

// compareEconomicFields flags every economic field whose trimmed string form
// differs between the record and its reference row. A field absent on one
// side compares as "".
func compareEconomicFields(rs *RuleSet, current, reference record.Record) []Anomaly {
	var out []Anomaly
	for _, field := range rs.EconomicFields {
		cur, ref := current.Text(field), reference.Text(field)
		if rs.structured[field] {
			cur, ref = structuredPair(current, reference, field)
		}
		if cur == ref {
			continue
		}
		out = append(out, Anomaly{
			Field:          field,
			CurrentValue:   cur,
			ReferenceValue: strPtr(ref),
			Issue:          "Mismatch in " + field,
			Severity:       rs.Severity(field),
		})
	}
	return out
}

// structuredPair renders both sides as canonical JSON when both hold (or
// encode) a list or mapping, so formatting differences do not count.
func structuredPair(current, reference record.Record, field string) (string, string) {
	cur, curOK := structured(current, field)
	ref, refOK := structured(reference, field)
	if curOK && refOK {
		return cur.String(), ref.String()
	}
	return current.Text(field), reference.Text(field)
}

func structured(rec record.Record, field string) (record.Value, bool) {
	v, ok := rec.Get(field)
	if !ok {
		return record.Value{}, false
	}
	if v.Kind() == record.KindText {
		text := strings.TrimSpace(v.String())
		if !strings.HasPrefix(text, "[") && !strings.HasPrefix(text, "{") {
			return record.Value{}, false
		}
		decoded, err := record.Text(text).Decode()
		if err != nil {
			return record.Value{}, false
		}
		v = decoded
	}
	switch v.Kind() {
	case record.KindList, record.KindMapping:
		return v, true
	default:
		return record.Value{}, false
	}
}
