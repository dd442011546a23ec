package domain

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"

	"recon/internal/search/models"
)

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// DNS collects the public records of a domain.
type DNS struct {
	resolver Resolver
}

func NewDNS(resolver Resolver) *DNS {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &DNS{resolver: resolver}
}

func (d *DNS) Name() string { return "dns_records" }

func (d *DNS) Lookup(ctx context.Context, domain string) (models.Document, error) {
	var errs []error
	note := func(err error) {
		var dnsErr *net.DNSError
		if err != nil && !(errors.As(err, &dnsErr) && dnsErr.IsNotFound) {
			errs = append(errs, err)
		}
	}

	a, aaaa := []string{}, []string{}
	addrs, err := d.resolver.LookupIPAddr(ctx, domain)
	note(err)
	for _, addr := range addrs {
		if addr.IP.To4() != nil {
			a = append(a, addr.IP.String())
		} else {
			aaaa = append(aaaa, addr.IP.String())
		}
	}

	mx := []any{}
	mxRecords, err := d.resolver.LookupMX(ctx, domain)
	note(err)
	sort.Slice(mxRecords, func(i, j int) bool { return mxRecords[i].Pref < mxRecords[j].Pref })
	for _, r := range mxRecords {
		mx = append(mx, models.Document{"priority": int(r.Pref), "exchange": strings.TrimSuffix(r.Host, ".")})
	}

	ns := []string{}
	nsRecords, err := d.resolver.LookupNS(ctx, domain)
	note(err)
	for _, r := range nsRecords {
		ns = append(ns, strings.TrimSuffix(r.Host, "."))
	}

	txt, err := d.resolver.LookupTXT(ctx, domain)
	note(err)
	if txt == nil {
		txt = []string{}
	}

	cname, err := d.resolver.LookupCNAME(ctx, domain)
	note(err)
	cname = strings.TrimSuffix(cname, ".")
	if cname == domain {
		cname = ""
	}

	total := len(a) + len(aaaa) + len(mx) + len(ns) + len(txt)
	if total == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	doc := models.Document{
		"a_records":    a,
		"aaaa_records": aaaa,
		"mx_records":   mx,
		"ns_records":   ns,
		"txt_records":  txt,
		"found":        total > 0,
		"source":       d.Name(),
		"confidence":   0.8,
	}
	if cname != "" {
		doc["cname"] = cname
	}
	if total == 0 {
		doc["confidence"] = 0.0
	}
	return doc, nil
}
