package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Document is an opaque JSON object produced by a source.
type Document = map[string]any

// Result is one source's contribution to a search.
type Result struct {
	ID              uuid.UUID `json:"id"`
	SearchID        uuid.UUID `json:"search_id"`
	Source          string    `json:"source"`
	Data            Document  `json:"data"`
	ConfidenceScore *float64  `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewResult builds a result with its confidence clamped to [0, 1].
func NewResult(searchID uuid.UUID, source string, data Document, confidence *float64, now time.Time) *Result {
	if data == nil {
		data = Document{}
	}
	var score *float64
	if confidence != nil {
		c := ClampConfidence(*confidence)
		score = &c
	}
	return &Result{
		ID:              uuid.New(),
		SearchID:        searchID,
		Source:          source,
		Data:            data,
		ConfidenceScore: score,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ClampConfidence maps v into [0, 1]; NaN becomes 0.
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Successful reports whether the stored payload represents a positive finding:
//   - an "error" key is a failure
//   - a "found" key decides on its own
//   - an adapter-level payload with a "summary" succeeds when any sub-source did
//   - a payload with neither indicator is a failure
func (r *Result) Successful() bool {
	return DocumentSuccessful(r.Data)
}

// DocumentSuccessful applies the Result.Successful rule to a raw payload.
func DocumentSuccessful(doc Document) bool {
	if len(doc) == 0 {
		return false
	}
	if _, ok := doc["error"]; ok {
		return false
	}
	if found, ok := doc["found"]; ok {
		b, _ := found.(bool)
		return b
	}
	if summary, ok := doc["summary"].(map[string]any); ok {
		return toInt(summary["successful_sources"]) > 0
	}
	return false
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
