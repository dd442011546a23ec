package app

import (
	"log/slog"
	"net"

	"recon/internal/platform/config"
	"recon/internal/platform/transport"
	"recon/internal/search/models"
	"recon/internal/search/normalize"
	"recon/internal/search/sources"
	"recon/internal/search/sources/domain"
	"recon/internal/search/sources/email"
	"recon/internal/search/sources/phone"
)

// Mappers builds the normalizer registry for every adapter this binary ships.
func Mappers(logger *slog.Logger) *normalize.Registry {
	b := normalize.NewBuilder()
	email.RegisterMappers(b)
	domain.RegisterMappers(b)
	phone.RegisterMappers(b)
	return b.Build(logger)
}

// Adapters binds each search type to its adapters. Upstreams without a base
// URL are left out; username searches have no adapter.
func Adapters(cfg config.SourcesConfig, mappers *normalize.Registry, logger *slog.Logger) (*sources.Registry, error) {
	client := func(name string, ep config.Endpoint, header string) *transport.Client {
		return transport.New(name, ep, cfg, transport.WithLogger(logger), transport.WithHeader(header, ep.APIKey))
	}

	emailSubs := []sources.SubSource{email.NewValidator(net.DefaultResolver)}
	var gravatar sources.SubSource
	if cfg.Gravatar.BaseURL != "" {
		gravatar = email.NewGravatar(client("gravatar", cfg.Gravatar, "Authorization"))
		emailSubs = append(emailSubs, gravatar)
	}
	if cfg.Breach.BaseURL != "" {
		emailSubs = append(emailSubs, email.NewBreach(client("breach", cfg.Breach, "hibp-api-key")))
	}

	domainSubs := []sources.SubSource{}
	if cfg.RDAP.BaseURL != "" {
		domainSubs = append(domainSubs, domain.NewRDAP(client("rdap", cfg.RDAP, "Authorization")))
	}
	domainSubs = append(domainSubs,
		domain.NewDNS(net.DefaultResolver),
		domain.NewCertificate(domain.WithDialTimeout(cfg.Timeout)),
	)
	if cfg.RapidDNS.BaseURL != "" {
		domainSubs = append(domainSubs, domain.NewSubdomains(client("rapiddns", cfg.RapidDNS, "X-API-KEY")))
	}

	lookups := []phone.Lookup{phone.Numbering{}}
	if cfg.HLR.BaseURL != "" {
		lookups = append(lookups, phone.NewHLR(client("hlr", cfg.HLR, "X-API-Key")))
	}
	if cfg.LeakCheck.BaseURL != "" {
		lookups = append(lookups, phone.NewLeakCheck(client("leakcheck", cfg.LeakCheck, "X-API-Key"), logger))
	}
	phoneOpts := []phone.Option{phone.WithLogger(logger)}
	if gravatar != nil {
		phoneOpts = append(phoneOpts, phone.WithLinkedEmail(gravatar, 0))
	}

	return sources.NewRegistry(map[models.SearchType][]sources.Adapter{
		models.SearchTypeEmail:  {email.New(mappers, emailSubs, email.WithLogger(logger))},
		models.SearchTypeDomain: {domain.New(mappers, domainSubs, domain.WithLogger(logger))},
		models.SearchTypePhone:  {phone.New(mappers, lookups, phoneOpts...)},
	}, phone.NewParser(cfg.PhoneParser, cfg.DefaultCountryCode))
}
