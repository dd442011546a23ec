package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"recon/internal/search/models"
	"recon/internal/search/sources"
	"recon/pkg/platform/sentinel"
)

const subdomainPageSize = "100"

// Subdomains enumerates known subdomains through the RapidDNS search API.
type Subdomains struct {
	client sources.HTTPClient
}

func NewSubdomains(client sources.HTTPClient) *Subdomains {
	return &Subdomains{client: client}
}

func (s *Subdomains) Name() string { return "subdomains" }

type rapidDNSResponse struct {
	Status  any             `json:"status"`
	Msg     string          `json:"msg"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type rapidDNSData struct {
	Total   int              `json:"total"`
	Status  string           `json:"status"`
	Records []rapidDNSRecord `json:"data"`
}

type rapidDNSRecord struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Subdomain string `json:"subdomain"`
}

func (s *Subdomains) Lookup(ctx context.Context, domain string) (models.Document, error) {
	var resp rapidDNSResponse
	err := s.client.GetJSON(ctx, "/search/"+domain, map[string]string{
		"page":        "1",
		"pagesize":    subdomainPageSize,
		"search_type": "subdomain",
	}, &resp)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Document{"found": false, "subdomains": []string{}, "subdomain_count": 0, "source": s.Name()}, nil
	}
	if err != nil {
		return nil, err
	}
	if !statusOK(resp.Status) {
		return nil, fmt.Errorf("%s: api error: %s", s.client.Name(), resp.Msg)
	}

	data, err := decodeRapidDNS(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.client.Name(), err)
	}

	seen := map[string]bool{}
	names := []string{}
	for _, r := range data.Records {
		name := r.Subdomain
		if name == "" {
			name = r.Value
		}
		name = strings.TrimSuffix(strings.ToLower(name), ".")
		if name == "" || name == domain || seen[name] || !strings.HasSuffix(name, "."+domain) {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)

	total := data.Total
	if total < len(names) {
		total = len(names)
	}
	return models.Document{
		"subdomains":      names,
		"subdomain_count": len(names),
		"total":           total,
		"found":           len(names) > 0,
		"source":          s.Name(),
		"confidence":      0.7,
	}, nil
}

// decodeRapidDNS reads the record list from "message" when the API
// returns it there, otherwise from "data".
func decodeRapidDNS(resp rapidDNSResponse) (rapidDNSData, error) {
	var data rapidDNSData
	if len(resp.Message) > 0 {
		if err := json.Unmarshal(resp.Message, &data); err == nil && (len(data.Records) > 0 || data.Total > 0) {
			return data, nil
		}
	}
	data = rapidDNSData{}
	if len(resp.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		var msg string
		if json.Unmarshal(resp.Data, &msg) == nil {
			return data, fmt.Errorf("api returned message %q", msg)
		}
		return data, fmt.Errorf("decode subdomain data: %w", err)
	}
	return data, nil
}

func statusOK(status any) bool {
	switch s := status.(type) {
	case float64:
		return s == 200
	case string:
		return s == "200" || s == "ok"
	case nil:
		return true
	}
	return false
}
