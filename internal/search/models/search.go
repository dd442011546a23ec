package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "recon/pkg/domain-errors"
)

// MaxQueryLength bounds the stored query text.
const MaxQueryLength = 512

// SearchType is the closed set of query kinds.
type SearchType string

const (
	SearchTypeEmail    SearchType = "email"
	SearchTypeDomain   SearchType = "domain"
	SearchTypePhone    SearchType = "phone"
	SearchTypeUsername SearchType = "username"
)

// SearchTypes lists every type in a stable order.
var SearchTypes = []SearchType{SearchTypeEmail, SearchTypeDomain, SearchTypePhone, SearchTypeUsername}

func (t SearchType) IsValid() bool {
	switch t {
	case SearchTypeEmail, SearchTypeDomain, SearchTypePhone, SearchTypeUsername:
		return true
	}
	return false
}

func (t SearchType) String() string { return string(t) }

// ParseSearchType accepts the wire value in any case.
func ParseSearchType(raw string) (SearchType, error) {
	t := SearchType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported search type: "+raw)
	}
	return t, nil
}

// SearchStatus is the lifecycle position of a Search.
type SearchStatus string

const (
	SearchStatusPending    SearchStatus = "pending"
	SearchStatusInProgress SearchStatus = "in_progress"
	SearchStatusCompleted  SearchStatus = "completed"
	SearchStatusFailed     SearchStatus = "failed"
)

func (s SearchStatus) IsValid() bool {
	switch s {
	case SearchStatusPending, SearchStatusInProgress, SearchStatusCompleted, SearchStatusFailed:
		return true
	}
	return false
}

func (s SearchStatus) IsTerminal() bool {
	return s == SearchStatusCompleted || s == SearchStatusFailed
}

func (s SearchStatus) String() string { return string(s) }

// CanTransitionTo encodes the lifecycle:
//
//	pending -> in_progress -> completed | failed
//	pending -> failed
func (s SearchStatus) CanTransitionTo(next SearchStatus) bool {
	switch s {
	case SearchStatusPending:
		return next == SearchStatusInProgress || next == SearchStatusFailed
	case SearchStatusInProgress:
		return next == SearchStatusCompleted || next == SearchStatusFailed
	}
	return false
}

func ParseSearchStatus(raw string) (SearchStatus, error) {
	s := SearchStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported search status: "+raw)
	}
	return s, nil
}

// Search is one user-submitted query and its execution state.
//
// Invariants:
//   - Status only moves forward (see SearchStatus.CanTransitionTo)
//   - ErrorMessage is set iff Status is failed or at least one source failed
//   - ResultsCount is never negative
type Search struct {
	ID           uuid.UUID    `json:"id"`
	Type         SearchType   `json:"search_type"`
	Query        string       `json:"query"`
	Status       SearchStatus `json:"status"`
	ResultsCount int          `json:"results_count"`
	ErrorMessage *string      `json:"error_message"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewSearch builds a pending search.
func NewSearch(id uuid.UUID, searchType SearchType, query string, now time.Time) (*Search, error) {
	query = strings.TrimSpace(query)
	if !searchType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unsupported search type: "+string(searchType))
	}
	if query == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "query cannot be empty")
	}
	if len(query) > MaxQueryLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "query must be 512 characters or less")
	}
	return &Search{
		ID:        id,
		Type:      searchType,
		Query:     query,
		Status:    SearchStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanStart checks the pending -> in_progress transition.
func (s *Search) CanStart() error {
	if !s.Status.CanTransitionTo(SearchStatusInProgress) {
		return dErrors.New(dErrors.CodeInvalidState, "search is "+string(s.Status)+", expected pending")
	}
	return nil
}

// ApplyStart marks the search in progress. Call CanStart first.
func (s *Search) ApplyStart(now time.Time) {
	s.Status = SearchStatusInProgress
	s.UpdatedAt = now
}

// Finish moves the search to a terminal status with its final counts.
func (s *Search) Finish(status SearchStatus, resultsCount int, errorMessage *string, now time.Time) error {
	if !status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "finish requires a terminal status")
	}
	if !s.Status.CanTransitionTo(status) {
		return dErrors.New(dErrors.CodeInvalidState, "search cannot move from "+string(s.Status)+" to "+string(status))
	}
	if resultsCount < s.ResultsCount {
		resultsCount = s.ResultsCount
	}
	s.Status = status
	s.ResultsCount = resultsCount
	s.ErrorMessage = errorMessage
	s.UpdatedAt = now
	return nil
}

// Fail is Finish(failed) with no results.
func (s *Search) Fail(message string, now time.Time) error {
	return s.Finish(SearchStatusFailed, s.ResultsCount, &message, now)
}

// Clone returns a copy that shares no pointers with s.
func (s *Search) Clone() *Search {
	cp := *s
	if s.ErrorMessage != nil {
		msg := *s.ErrorMessage
		cp.ErrorMessage = &msg
	}
	return &cp
}
