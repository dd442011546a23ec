package handler

import (
	"net/url"
	"strconv"
	"strings"

	"recon/internal/search/models"
	dErrors "recon/pkg/domain-errors"
	platformstrings "recon/pkg/platform/strings"
)

// CreateSearchRequest is the body of POST /searches.
type CreateSearchRequest struct {
	SearchType string `json:"search_type"`
	Query      string `json:"query"`
}

func (r *CreateSearchRequest) Normalize() {
	r.SearchType = strings.ToLower(strings.TrimSpace(r.SearchType))
	r.Query = strings.TrimSpace(r.Query)
}

func (r *CreateSearchRequest) Validate() error {
	if r.SearchType == "" {
		return dErrors.New(dErrors.CodeValidation, "search_type is required")
	}
	if _, err := models.ParseSearchType(r.SearchType); err != nil {
		return err
	}
	if r.Query == "" {
		return dErrors.New(dErrors.CodeValidation, "query is required")
	}
	if len(r.Query) > models.MaxQueryLength {
		return dErrors.New(dErrors.CodeValidation, "query must be 512 characters or less")
	}
	return nil
}

// Type is the validated search type.
func (r *CreateSearchRequest) Type() models.SearchType {
	return models.SearchType(r.SearchType)
}

// CreateSearchResponse acknowledges a created search.
type CreateSearchResponse struct {
	Message  string              `json:"message"`
	SearchID string              `json:"search_id"`
	Status   models.SearchStatus `json:"status"`
}

// parseListFilter reads page, size, type and status. type and status may be
// repeated or comma separated.
func parseListFilter(q url.Values) (models.ListFilter, error) {
	var f models.ListFilter
	var err error
	if f.Page, err = intParam(q, "page"); err != nil {
		return f, err
	}
	if f.Size, err = intParam(q, "size"); err != nil {
		return f, err
	}
	for _, raw := range platformstrings.SplitList(q["type"], ",") {
		t, err := models.ParseSearchType(raw)
		if err != nil {
			return f, err
		}
		f.Types = append(f.Types, t)
	}
	for _, raw := range platformstrings.SplitList(q["status"], ",") {
		s, err := models.ParseSearchStatus(raw)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, s)
	}
	f.Normalize()
	return f, nil
}

func intParam(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be an integer")
	}
	return n, nil
}
