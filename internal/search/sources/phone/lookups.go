package phone

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"recon/internal/search/models"
	"recon/internal/search/sources"
	"recon/pkg/platform/sentinel"
)

// Numbering validates the number against the E.164 length plan without any
// network call.
type Numbering struct{}

func (Numbering) Name() string { return "numbering" }

func (Numbering) LookupPhone(_ context.Context, countryCode, number string) (models.Document, error) {
	code := strings.TrimPrefix(countryCode, "+")
	valid := checkDigits(code) == nil && checkDigits(number) == nil && checkLength(code, number) == nil
	_, known := callingCodes[code]

	confidence := 0.0
	if valid && known {
		confidence = 0.5
	}
	return models.Document{
		"found":  valid && known,
		"source": "numbering",
		"data": models.Document{
			"e164":               "+" + code + number,
			"country_code":       "+" + code,
			"national_number":    number,
			"known_calling_code": known,
			"valid_length":       valid,
			"national_digits":    len(number),
		},
		"confidence": confidence,
	}, nil
}

// HLR queries a home location register lookup API.
type HLR struct {
	client sources.HTTPClient
}

func NewHLR(client sources.HTTPClient) *HLR {
	return &HLR{client: client}
}

func (h *HLR) Name() string { return "hlr" }

type hlrResponse struct {
	MSISDN             string `json:"msisdn"`
	Status             string `json:"status"`
	ConnectivityStatus string `json:"connectivity_status"`
	NetworkName        string `json:"original_network_name"`
	CountryName        string `json:"original_country_name"`
	CountryISO         string `json:"original_country_code"`
	Ported             bool   `json:"is_ported"`
	Roaming            bool   `json:"is_roaming"`
}

func (h *HLR) LookupPhone(ctx context.Context, countryCode, number string) (models.Document, error) {
	var resp hlrResponse
	body := map[string]any{"msisdn": countryCode + number}
	if err := h.client.PostJSON(ctx, "/api/v2/hlr-lookup", body, &resp); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return notFound("hlr"), nil
		}
		return nil, err
	}

	found := hlrActive(resp.Status) || hlrActive(resp.ConnectivityStatus)
	confidence := 0.0
	if found {
		confidence = 0.8
	}
	return models.Document{
		"found":  found,
		"source": "hlr",
		"data": models.Document{
			"msisdn":              resp.MSISDN,
			"status":              resp.Status,
			"connectivity_status": resp.ConnectivityStatus,
			"network":             resp.NetworkName,
			"country":             resp.CountryName,
			"country_iso":         resp.CountryISO,
			"ported":              resp.Ported,
			"roaming":             resp.Roaming,
		},
		"confidence": confidence,
	}, nil
}

func hlrActive(status string) bool {
	switch strings.ToLower(status) {
	case "active", "valid", "reachable", "connected":
		return true
	}
	return false
}

// LeakCheck searches breach corpora for the number, both national and with
// its calling code.
type LeakCheck struct {
	client sources.HTTPClient
	logger *slog.Logger
}

func NewLeakCheck(client sources.HTTPClient, logger *slog.Logger) *LeakCheck {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeakCheck{client: client, logger: logger}
}

func (l *LeakCheck) Name() string { return "leakcheck" }

type leakCheckResponse struct {
	Success bool `json:"success"`
	Found   int  `json:"found"`
	Result  []struct {
		Email    string   `json:"email"`
		Username string   `json:"username"`
		Fields   []string `json:"fields"`
		Source   struct {
			Name       string `json:"name"`
			BreachDate string `json:"breach_date"`
		} `json:"source"`
	} `json:"result"`
}

func (l *LeakCheck) LookupPhone(ctx context.Context, countryCode, number string) (models.Document, error) {
	queries := []string{number, strings.TrimPrefix(countryCode, "+") + number}

	var entries []any
	var lastErr error
	failed := 0
	for _, q := range queries {
		var resp leakCheckResponse
		err := l.client.GetJSON(ctx, "/api/v2/query/"+q, map[string]string{"type": "phone"}, &resp)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			l.logger.WarnContext(ctx, "leakcheck query failed", "error", err)
			lastErr = err
			failed++
			continue
		}
		if !resp.Success {
			continue
		}
		for _, r := range resp.Result {
			entries = append(entries, models.Document{
				"email":       r.Email,
				"username":    r.Username,
				"fields":      r.Fields,
				"breach":      r.Source.Name,
				"breach_date": r.Source.BreachDate,
				"query":       q,
			})
		}
	}
	if failed == len(queries) {
		return nil, lastErr
	}
	if len(entries) == 0 {
		return notFound("leakcheck"), nil
	}
	return models.Document{
		"found":      true,
		"source":     "leakcheck",
		"data":       models.Document{"entries": entries, "count": len(entries)},
		"confidence": 0.8,
	}, nil
}

func notFound(source string) models.Document {
	return models.Document{
		"found":      false,
		"source":     source,
		"data":       nil,
		"confidence": 0.0,
	}
}
