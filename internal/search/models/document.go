package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Lookup is one sub-source entry of an adapter payload.
type Lookup struct {
	Source string
	Data   Document
}

// Lookups is an ordered per-sub-source breakdown. It marshals to a JSON
// object whose keys keep insertion order.
type Lookups []Lookup

func (l Lookups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Source)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(entry.Data)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the payload recorded for source.
func (l Lookups) Get(source string) (Document, bool) {
	for _, entry := range l {
		if entry.Source == source {
			return entry.Data, true
		}
	}
	return nil, false
}

// LookupsFrom accepts either an ordered Lookups value or a decoded JSON object.
// Object keys carry no order, so they are sorted.
func LookupsFrom(v any) (Lookups, bool) {
	switch t := v.(type) {
	case Lookups:
		return t, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Lookups, 0, len(keys))
		for _, k := range keys {
			doc, _ := t[k].(map[string]any)
			out = append(out, Lookup{Source: k, Data: doc})
		}
		return out, true
	}
	return nil, false
}

// Summary aggregates an adapter's sub-source outcomes.
type Summary struct {
	TotalSources      int
	SuccessfulSources int
	FailedSources     int
	FoundData         bool
	Timestamp         time.Time
}

// Document renders the summary in its JSON-compatible form.
func (s Summary) Document() Document {
	return Document{
		"total_sources":      s.TotalSources,
		"successful_sources": s.SuccessfulSources,
		"failed_sources":     s.FailedSources,
		"found_data":         s.FoundData,
		"timestamp":          s.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Completeness is successful/max(total, 1).
func (s Summary) Completeness() float64 {
	total := s.TotalSources
	if total < 1 {
		total = 1
	}
	return float64(s.SuccessfulSources) / float64(total)
}

// SummaryFrom reads a summary from a Summary value or a summary document.
func SummaryFrom(v any) (Summary, bool) {
	switch t := v.(type) {
	case Summary:
		return t, true
	case map[string]any:
		s := Summary{
			TotalSources:      toInt(t["total_sources"]),
			SuccessfulSources: toInt(t["successful_sources"]),
			FailedSources:     toInt(t["failed_sources"]),
		}
		s.FoundData, _ = t["found_data"].(bool)
		if ts, ok := t["timestamp"].(string); ok {
			s.Timestamp, _ = time.Parse(time.RFC3339, ts)
		}
		return s, true
	}
	return Summary{}, false
}
