package models

// DefaultPageSize and MaxPageSize bound listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter selects searches for listing. Empty slices match everything.
type ListFilter struct {
	Types    []SearchType
	Statuses []SearchStatus
	Page     int
	Size     int
}

// Normalize applies paging defaults and bounds.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size < 1 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Size
}

// Matches reports whether s passes the type and status filters.
func (f ListFilter) Matches(s *Search) bool {
	if len(f.Types) > 0 && !containsType(f.Types, s.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.Status) {
		return false
	}
	return true
}

// SearchPage is one page of searches, newest first.
type SearchPage struct {
	Items []*Search `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

// Overview aggregates searches across the store.
type Overview struct {
	Total    int                  `json:"total_searches"`
	ByStatus map[SearchStatus]int `json:"by_status"`
	ByType   map[SearchType]int   `json:"by_type"`
}

// SourceStats summarizes the results one source produced for a search.
type SourceStats struct {
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Aggregate computes per-source counts and the mean of non-null confidence scores.
func Aggregate(results []*Result) map[string]SourceStats {
	type acc struct {
		count  int
		sum    float64
		scored int
	}
	accs := make(map[string]*acc)
	for _, r := range results {
		a, ok := accs[r.Source]
		if !ok {
			a = &acc{}
			accs[r.Source] = a
		}
		a.count++
		if r.ConfidenceScore != nil {
			a.sum += *r.ConfidenceScore
			a.scored++
		}
	}
	out := make(map[string]SourceStats, len(accs))
	for source, a := range accs {
		stat := SourceStats{Count: a.count}
		if a.scored > 0 {
			stat.AvgConfidence = a.sum / float64(a.scored)
		}
		out[source] = stat
	}
	return out
}

func containsType(types []SearchType, t SearchType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []SearchStatus, s SearchStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
