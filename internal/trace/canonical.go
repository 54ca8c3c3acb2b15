package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// floatDigits is the number of significant digits kept for floats in
// canonical output. Golden traces compare bytes, so last-bit noise from a
// different summation order must not show up.
const floatDigits = 12

// MarshalCanonical encodes v as canonical JSON: object keys sorted by UTF-16
// code units, strings NFC normalised with no HTML escaping, and floats
// rounded to a fixed number of significant digits. NaN and infinities are
// rejected.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return writeString(buf, val)
	case EventKind:
		return writeString(buf, string(val))
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		return writeFloat(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]float64:
		obj := make(map[string]any, len(val))
		for k, f := range val {
			obj[k] = f
		}
		return writeObject(buf, obj)
	case map[string]any:
		return writeObject(buf, val)
	case StepRecord:
		return writeObject(buf, stepObject(val))
	case EventRecord:
		return writeObject(buf, eventObject(val))
	case RollbackRecord:
		return writeObject(buf, rollbackObject(val))
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite float in canonical JSON: %v", f)
	}
	if f == 0 {
		// Collapses -0 as well.
		buf.WriteByte('0')
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', floatDigits, 64))
	return nil
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return utf16Less(keys[i], keys[j]) })

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func utf16Less(a, b string) bool {
	ua := utf16.Encode([]rune(norm.NFC.String(a)))
	ub := utf16.Encode([]rune(norm.NFC.String(b)))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

func stepObject(r StepRecord) map[string]any {
	obj := map[string]any{
		"type":      "step",
		"seq":       r.Seq,
		"begin":     r.Begin,
		"end":       r.End,
		"step_size": r.StepSize,
		"solver":    r.Solver,
		"rounds":    r.Rounds,
		"retries":   r.Retries,
	}
	if len(r.States) > 0 {
		obj["states"] = r.States
	}
	return obj
}

func eventObject(r EventRecord) map[string]any {
	obj := map[string]any{
		"type": "event",
		"seq":  r.Seq,
		"time": r.Time,
		"kind": r.Kind,
	}
	if r.Actor != "" {
		obj["actor"] = r.Actor
	}
	if r.Value != 0 {
		obj["value"] = r.Value
	}
	return obj
}

func rollbackObject(r RollbackRecord) map[string]any {
	return map[string]any{
		"type":   "rollback",
		"seq":    r.Seq,
		"from":   r.From,
		"to":     r.To,
		"target": r.Target,
	}
}

// Snapshot renders every record in seq order, one canonical JSON object per
// line.
func (m *Memory) Snapshot() ([]byte, error) {
	type entry struct {
		seq int64
		v   any
	}
	var all []entry
	for _, s := range m.Steps() {
		all = append(all, entry{s.Seq, s})
	}
	for _, e := range m.Events() {
		all = append(all, entry{e.Seq, e})
	}
	for _, r := range m.Rollbacks() {
		all = append(all, entry{r.Seq, r})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	var buf bytes.Buffer
	for _, e := range all {
		line, err := MarshalCanonical(e.v)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", e.seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
