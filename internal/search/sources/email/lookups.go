package email

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/mail"
	"net/url"
	"sort"
	"strings"

	"recon/internal/search/models"
	"recon/internal/search/sources"
	"recon/pkg/platform/sentinel"
)

// MXResolver is satisfied by *net.Resolver.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Validator checks address syntax and whether the domain accepts mail.
type Validator struct {
	resolver MXResolver
}

func NewValidator(resolver MXResolver) *Validator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Validator{resolver: resolver}
}

func (v *Validator) Name() string { return "email_validator" }

func (v *Validator) Lookup(ctx context.Context, address string) (models.Document, error) {
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return models.Document{
			"found":      false,
			"source":     v.Name(),
			"data":       models.Document{"email": address, "valid_syntax": false},
			"confidence": 0.0,
		}, nil
	}
	domain := address[strings.LastIndex(address, "@")+1:]

	records, err := v.resolver.LookupMX(ctx, domain)
	var dnsErr *net.DNSError
	if err != nil && !(errors.As(err, &dnsErr) && dnsErr.IsNotFound) {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		hosts = append(hosts, strings.TrimSuffix(mx.Host, "."))
	}

	found := len(hosts) > 0
	confidence := 0.0
	if found {
		confidence = 0.6
	}
	return models.Document{
		"found":  found,
		"source": v.Name(),
		"data": models.Document{
			"email":        address,
			"domain":       domain,
			"valid_syntax": true,
			"has_mx":       found,
			"mx_records":   hosts,
		},
		"confidence": confidence,
	}, nil
}

// Gravatar looks up the public profile tied to the address hash.
type Gravatar struct {
	client sources.HTTPClient
}

func NewGravatar(client sources.HTTPClient) *Gravatar {
	return &Gravatar{client: client}
}

func (g *Gravatar) Name() string { return "gravatar" }

type gravatarResponse struct {
	Entry []struct {
		Hash              string `json:"hash"`
		PreferredUsername string `json:"preferredUsername"`
		DisplayName       string `json:"displayName"`
		ProfileURL        string `json:"profileUrl"`
		ThumbnailURL      string `json:"thumbnailUrl"`
		AboutMe           string `json:"aboutMe"`
		CurrentLocation   string `json:"currentLocation"`
		URLs              []struct {
			Title string `json:"title"`
			Value string `json:"value"`
		} `json:"urls"`
	} `json:"entry"`
}

func (g *Gravatar) Lookup(ctx context.Context, address string) (models.Document, error) {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(address))))
	hash := hex.EncodeToString(sum[:])

	var resp gravatarResponse
	err := g.client.GetJSON(ctx, "/"+hash+".json", nil, &resp)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && len(resp.Entry) == 0) {
		return notFound(g.Name()), nil
	}
	if err != nil {
		return nil, err
	}

	entry := resp.Entry[0]
	links := make([]string, 0, len(entry.URLs))
	for _, u := range entry.URLs {
		links = append(links, u.Value)
	}
	return models.Document{
		"found":  true,
		"source": g.Name(),
		"data": models.Document{
			"hash":         hash,
			"username":     entry.PreferredUsername,
			"display_name": entry.DisplayName,
			"profile_url":  entry.ProfileURL,
			"avatar_url":   entry.ThumbnailURL,
			"about":        entry.AboutMe,
			"location":     entry.CurrentLocation,
			"urls":         links,
		},
		"confidence": 0.7,
	}, nil
}

// Breach queries a breach index that speaks the HIBP v3 API.
type Breach struct {
	client sources.HTTPClient
}

func NewBreach(client sources.HTTPClient) *Breach {
	return &Breach{client: client}
}

func (b *Breach) Name() string { return "breach" }

type breachRecord struct {
	Name        string   `json:"Name"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	PwnCount    int      `json:"PwnCount"`
	DataClasses []string `json:"DataClasses"`
	IsVerified  bool     `json:"IsVerified"`
}

func (b *Breach) Lookup(ctx context.Context, address string) (models.Document, error) {
	var records []breachRecord
	err := b.client.GetJSON(ctx, "/breachedaccount/"+url.PathEscape(address),
		map[string]string{"truncateResponse": "false"}, &records)
	if errors.Is(err, sentinel.ErrNotFound) {
		return notFound(b.Name()), nil
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return notFound(b.Name()), nil
	}

	breaches := make([]any, 0, len(records))
	for _, r := range records {
		breaches = append(breaches, models.Document{
			"name":         r.Name,
			"domain":       r.Domain,
			"breach_date":  r.BreachDate,
			"pwn_count":    r.PwnCount,
			"data_classes": r.DataClasses,
			"verified":     r.IsVerified,
		})
	}
	return models.Document{
		"found":      true,
		"source":     b.Name(),
		"data":       models.Document{"breach_count": len(records), "breaches": breaches},
		"confidence": 0.9,
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
