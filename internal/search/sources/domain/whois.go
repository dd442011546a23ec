package domain

import (
	"context"
	"errors"

	"recon/internal/search/models"
	"recon/internal/search/sources"
	"recon/pkg/platform/sentinel"
)

// RDAP reads registration data from an RDAP service such as rdap.org.
type RDAP struct {
	client sources.HTTPClient
}

func NewRDAP(client sources.HTTPClient) *RDAP {
	return &RDAP{client: client}
}

func (r *RDAP) Name() string { return "whois" }

type rdapDomain struct {
	LDHName string   `json:"ldhName"`
	Status  []string `json:"status"`
	Events  []struct {
		Action string `json:"eventAction"`
		Date   string `json:"eventDate"`
	} `json:"events"`
	Entities    []rdapEntity `json:"entities"`
	Nameservers []struct {
		LDHName string `json:"ldhName"`
	} `json:"nameservers"`
}

type rdapEntity struct {
	Handle string   `json:"handle"`
	Roles  []string `json:"roles"`
	VCard  []any    `json:"vcardArray"`
}

func (r *RDAP) Lookup(ctx context.Context, domain string) (models.Document, error) {
	var resp rdapDomain
	err := r.client.GetJSON(ctx, "/domain/"+domain, nil, &resp)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Document{
			"found":      false,
			"registered": false,
			"source":     r.Name(),
			"confidence": 0.0,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	events := map[string]string{}
	for _, e := range resp.Events {
		events[e.Action] = e.Date
	}
	nameservers := make([]string, 0, len(resp.Nameservers))
	for _, ns := range resp.Nameservers {
		nameservers = append(nameservers, ns.LDHName)
	}

	return models.Document{
		"domain":        resp.LDHName,
		"registered":    true,
		"found":         true,
		"registrar":     entityName(resp.Entities, "registrar"),
		"registrant":    entityName(resp.Entities, "registrant"),
		"creation_date": events["registration"],
		"expiry_date":   events["expiration"],
		"updated_date":  events["last changed"],
		"status":        resp.Status,
		"nameservers":   nameservers,
		"source":        r.Name(),
		"confidence":    0.9,
	}, nil
}

// entityName returns the vCard "fn" of the first entity holding role.
func entityName(entities []rdapEntity, role string) string {
	for _, e := range entities {
		for _, r := range e.Roles {
			if r != role {
				continue
			}
			if fn := vcardField(e.VCard, "fn"); fn != "" {
				return fn
			}
			return e.Handle
		}
	}
	return ""
}

// vcardField reads a text property from a jCard: ["vcard", [[name, params, type, value], ...]].
func vcardField(card []any, name string) string {
	if len(card) < 2 {
		return ""
	}
	props, _ := card[1].([]any)
	for _, p := range props {
		prop, _ := p.([]any)
		if len(prop) < 4 {
			continue
		}
		if key, _ := prop[0].(string); key == name {
			value, _ := prop[3].(string)
			return value
		}
	}
	return ""
}
