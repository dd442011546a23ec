package normalize

import (
	"errors"
	"strings"

	"recon/internal/search/models"
)

// Error codes set by APIError.
const (
	CodeTimeout    = "TIMEOUT_ERROR"
	CodeConnection = "CONNECTION_ERROR"
	CodeHTTP       = "HTTP_ERROR"
	CodeAPI        = "API_ERROR"
)

type retryable interface {
	Retryable() bool
}

// APIError classifies upstream failures by kind and recommends a retry for
// timeouts and connection failures.
func APIError(err error) (Envelope, error) {
	kind := ErrorKind(err)

	var msg, code string
	switch {
	case strings.Contains(kind, "Timeout"):
		msg, code = "External API request timed out", CodeTimeout
	case strings.Contains(kind, "Connection"):
		msg, code = "Unable to connect to external API", CodeConnection
	case strings.Contains(kind, "HTTP"):
		msg, code = "External API returned an error", CodeHTTP
	default:
		detail := "unknown error"
		if err != nil {
			detail = err.Error()
		}
		msg, code = "External API error: "+detail, CodeAPI
	}

	retry := kind == "Timeout" || kind == "Connection"
	var r retryable
	if errors.As(err, &r) {
		retry = r.Retryable()
	}

	return Envelope{
		Success:   false,
		Message:   msg,
		ErrorCode: code,
		Metadata: models.Document{
			"error_type":        kind,
			"retry_recommended": retry,
		},
	}, nil
}

// DomainSuccess keeps the per-source breakdown under "sources" and scores the
// payload by the share of successful sub-sources.
func DomainSuccess(raw models.Document) (Envelope, error) {
	summary, _ := models.SummaryFrom(raw["summary"])
	completeness := "partial"
	if summary.SuccessfulSources > 2 {
		completeness = "high"
	}

	data := models.Document{
		"domain":           stringOr(raw["domain"], "unknown"),
		"sources":          orEmpty(raw["sources"]),
		"summary":          orEmpty(raw["summary"]),
		"confidence_score": summary.Completeness(),
	}
	return Envelope{
		Success: true,
		Message: "Domain analysis completed successfully",
		Data:    data,
		Metadata: models.Document{
			"source_type":       "domain_analysis",
			"data_completeness": completeness,
		},
	}, nil
}

// LookupSuccess builds a mapper for adapters that report one entry per
// sub-source under "lookup_results". subject names the queried field.
func LookupSuccess(subject, sourceType, message string) SuccessMapper {
	return func(raw models.Document) (Envelope, error) {
		summary, _ := models.SummaryFrom(raw["summary"])
		completeness := "low"
		if summary.FoundData {
			completeness = "high"
		}

		data := models.Document{
			subject:            stringOr(raw[subject], "unknown"),
			"lookup_results":   orEmpty(raw["lookup_results"]),
			"summary":          orEmpty(raw["summary"]),
			"confidence_score": summary.Completeness(),
		}
		for _, key := range []string{"country_code", "phone_number", "linked_emails"} {
			if v, ok := raw[key]; ok {
				data[key] = v
			}
		}
		return Envelope{
			Success: true,
			Message: message,
			Data:    data,
			Metadata: models.Document{
				"source_type":       sourceType,
				"data_completeness": completeness,
			},
		}, nil
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func orEmpty(v any) any {
	if v == nil {
		return models.Document{}
	}
	return v
}
