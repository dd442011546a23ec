package domain

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"recon/internal/platform/config"
	"recon/internal/platform/transport"
	"recon/internal/search/models"
	"recon/internal/search/normalize"
	"recon/internal/search/sources"
)

func testClient(t *testing.T, h http.HandlerFunc) *transport.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return transport.New("test", config.Endpoint{BaseURL: srv.URL}, config.SourcesConfig{
		Timeout:         2 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
	})
}

func TestRDAP(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/domain/example.com" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/rdap+json")
		_, _ = w.Write([]byte(`{
			"ldhName": "EXAMPLE.COM",
			"status":  ["client delete prohibited"],
			"events": [
				{"eventAction": "registration", "eventDate": "1995-08-14T04:00:00Z"},
				{"eventAction": "expiration", "eventDate": "2026-08-13T04:00:00Z"}
			],
			"entities": [
				{"handle": "376", "roles": ["registrar"], "vcardArray": ["vcard", [["version", {}, "text", "4.0"], ["fn", {}, "text", "RESERVED-IANA"]]]}
			],
			"nameservers": [{"ldhName": "A.IANA-SERVERS.NET"}, {"ldhName": "B.IANA-SERVERS.NET"}]
		}`))
	})
	rdap := NewRDAP(client)

	doc, err := rdap.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "RESERVED-IANA", doc["registrar"])
	assert.Equal(t, "1995-08-14T04:00:00Z", doc["creation_date"])
	assert.Equal(t, "2026-08-13T04:00:00Z", doc["expiry_date"])
	assert.Equal(t, []string{"A.IANA-SERVERS.NET", "B.IANA-SERVERS.NET"}, doc["nameservers"])
	assert.True(t, models.DocumentSuccessful(doc))

	doc, err = rdap.Lookup(context.Background(), "unregistered.example")
	require.NoError(t, err)
	assert.False(t, models.DocumentSuccessful(doc))
}

type stubResolver struct {
	addrs []net.IPAddr
	mx    []*net.MX
	ns    []*net.NS
	txt   []string
	cname string
	err   error
}

func (s stubResolver) LookupIPAddr(context.Context, string) ([]net.IPAddr, error) {
	return s.addrs, s.err
}

func (s stubResolver) LookupMX(context.Context, string) ([]*net.MX, error) {
	return s.mx, s.err
}

func (s stubResolver) LookupNS(context.Context, string) ([]*net.NS, error) {
	return s.ns, s.err
}

func (s stubResolver) LookupTXT(context.Context, string) ([]string, error) {
	return s.txt, s.err
}

func (s stubResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	if s.cname == "" {
		return host + ".", s.err
	}
	return s.cname, s.err
}

func TestDNS(t *testing.T) {
	ctx := context.Background()

	t.Run("collects records", func(t *testing.T) {
		d := NewDNS(stubResolver{
			addrs: []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}, {IP: net.ParseIP("2606:2800:220:1::1")}},
			mx:    []*net.MX{{Host: "mx2.example.com.", Pref: 20}, {Host: "mx1.example.com.", Pref: 10}},
			ns:    []*net.NS{{Host: "a.iana-servers.net."}},
			txt:   []string{"v=spf1 -all"},
		})
		doc, err := d.Lookup(ctx, "example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"93.184.216.34"}, doc["a_records"])
		assert.Equal(t, []string{"2606:2800:220:1::1"}, doc["aaaa_records"])
		assert.Equal(t, []any{
			models.Document{"priority": 10, "exchange": "mx1.example.com"},
			models.Document{"priority": 20, "exchange": "mx2.example.com"},
		}, doc["mx_records"])
		assert.Equal(t, []string{"a.iana-servers.net"}, doc["ns_records"])
		assert.NotContains(t, doc, "cname")
		assert.True(t, models.DocumentSuccessful(doc))
	})

	t.Run("nxdomain is an empty finding", func(t *testing.T) {
		d := NewDNS(stubResolver{err: &net.DNSError{Err: "no such host", IsNotFound: true}})
		doc, err := d.Lookup(ctx, "nope.invalid")
		require.NoError(t, err)
		assert.False(t, models.DocumentSuccessful(doc))
	})

	t.Run("resolver failure without records fails", func(t *testing.T) {
		d := NewDNS(stubResolver{err: &net.DNSError{Err: "server misbehaving", IsTemporary: true}})
		_, err := d.Lookup(ctx, "example.com")
		var dnsErr *net.DNSError
		assert.True(t, errors.As(err, &dnsErr))
	})
}

func TestCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	c := NewCertificate(WithPort(port), WithTLSConfig(&tls.Config{RootCAs: pool}), WithDialTimeout(time.Second))
	doc, err := c.Lookup(context.Background(), host)
	require.NoError(t, err)
	assert.Contains(t, doc["issuer"], "Acme Co")
	assert.Contains(t, doc["dns_names"], "example.com")
	assert.Equal(t, false, doc["expired"])
	assert.Regexp(t, `^SHA256:[0-9a-f]{64}$`, doc["fingerprint"])
}

func TestCertificateUntrusted(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	_, err = NewCertificate(WithPort(port)).Lookup(context.Background(), host)
	require.Error(t, err)
}

func TestSubdomains(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/example.com", r.URL.Path)
		assert.Equal(t, "subdomain", r.URL.Query().Get("search_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":200,"msg":"ok","data":{"total":4,"status":"ok","data":[
			{"subdomain":"www.example.com","type":"A","value":"93.184.216.34"},
			{"subdomain":"API.example.com.","type":"A"},
			{"subdomain":"www.example.com","type":"AAAA"},
			{"subdomain":"example.com","type":"A"}
		]}}`))
	})

	doc, err := NewSubdomains(client).Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"api.example.com", "www.example.com"}, doc["subdomains"])
	assert.Equal(t, 2, doc["subdomain_count"])
	assert.Equal(t, 4, doc["total"])
}

func TestSubdomainsAPIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":403,"msg":"plan required"}`))
	})

	_, err := NewSubdomains(client).Lookup(context.Background(), "example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan required")
}

// =============================================================================
// Adapter
// =============================================================================

type AdapterSuite struct {
	suite.Suite
	mappers *normalize.Registry
	now     time.Time
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

func (s *AdapterSuite) SetupTest() {
	b := normalize.NewBuilder()
	RegisterMappers(b)
	s.mappers = b.Build(nil)
	s.now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
}

func (s *AdapterSuite) source(name string, doc models.Document, err error) sources.SubSource {
	return sources.NewFunc(name, func(context.Context, string) (models.Document, error) {
		return doc, err
	})
}

func (s *AdapterSuite) TestBreakdownUnderSources() {
	a := New(s.mappers, []sources.SubSource{
		s.source("whois", models.Document{"registrar": "r", "found": true, "source": "whois"}, nil),
		s.source("dns_records", models.Document{"a_records": []string{"1.2.3.4"}, "found": true, "source": "dns_records"}, nil),
		s.source("ssl_certificate", nil, errors.New("handshake failed")),
		s.source("subdomains", models.Document{"subdomains": []string{"www"}, "found": true, "source": "subdomains"}, nil),
	}, WithClock(func() time.Time { return s.now }))

	env, err := a.SearchDomain(context.Background(), " Example.COM. ")
	s.Require().NoError(err)
	s.True(env.Success)
	s.Equal("Domain analysis completed successfully", env.Message)
	s.Equal("example.com", env.Data["domain"])
	s.NotContains(env.Data, "lookup_results")
	s.InDelta(0.75, env.Data["confidence_score"], 1e-9)
	s.Equal("domain_analysis", env.Metadata["source_type"])
	s.Equal("high", env.Metadata["data_completeness"])

	breakdown, ok := models.LookupsFrom(env.Data["sources"])
	s.Require().True(ok)
	s.Require().Len(breakdown, 4)
	s.Equal("ssl_certificate", breakdown[2].Source)
	s.Equal("handshake failed", breakdown[2].Data["error"])
}

func (s *AdapterSuite) TestPartialCompleteness() {
	a := New(s.mappers, []sources.SubSource{
		s.source("whois", models.Document{"registrar": "r", "found": true}, nil),
		s.source("dns_records", nil, errors.New("timeout")),
	})

	env, err := a.SearchDomain(context.Background(), "example.com")
	s.Require().NoError(err)
	s.Equal("partial", env.Metadata["data_completeness"])
	s.InDelta(0.5, env.Data["confidence_score"], 1e-9)
}
