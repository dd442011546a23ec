package phone

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon/internal/platform/config"
	"recon/internal/platform/transport"
	"recon/internal/search/models"
	"recon/internal/search/normalize"
	"recon/internal/search/sources"
)

func TestTableParser(t *testing.T) {
	p := TableParser{DefaultCountryCode: "+1"}

	tests := []struct {
		name   string
		query  string
		cc     string
		number string
		err    error
	}{
		{name: "two digit calling code", query: "+919997260627", cc: "+91", number: "9997260627"},
		{name: "one digit calling code", query: "+14155550123", cc: "+1", number: "4155550123"},
		{name: "three digit calling code", query: "+353861234567", cc: "+353", number: "861234567"},
		{name: "separators are ignored", query: "+44 20-7946 0958", cc: "+44", number: "2079460958"},
		{name: "colon form", query: "91:9997260627", cc: "+91", number: "9997260627"},
		{name: "colon form with plus", query: "+44:7700900123", cc: "+44", number: "7700900123"},
		{name: "bare number uses default", query: "4155550123", cc: "+1", number: "4155550123"},
		{name: "unknown calling code", query: "+999123456", err: ErrUnknownCallingCode},
		{name: "letters", query: "+91abc", err: ErrInvalidDigits},
		{name: "empty", query: "  ", err: ErrEmptyNumber},
		{name: "too short", query: "+91123", err: ErrNumberLength},
		{name: "too long", query: "+9112345678901234", err: ErrNumberLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, number, err := p.Parse(tt.query)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cc, cc)
			assert.Equal(t, tt.number, number)
		})
	}
}

func TestLegacyParser(t *testing.T) {
	p := LegacyParser{DefaultCountryCode: "+1"}

	cc, number, err := p.Parse("+919997260627")
	require.NoError(t, err)
	assert.Equal(t, "+91", cc)
	assert.Equal(t, "9997260627", number)

	// the fixed split misreads one-digit codes; the table parser exists for this
	cc, number, err = p.Parse("+14155550123")
	require.NoError(t, err)
	assert.Equal(t, "+14", cc)
	assert.Equal(t, "155550123", number)

	cc, number, err = p.Parse("+4155550")
	require.NoError(t, err)
	assert.Equal(t, "+1", cc)
	assert.Equal(t, "4155550", number)

	_, _, err = p.Parse("")
	assert.ErrorIs(t, err, ErrEmptyNumber)
}

func TestNewParser(t *testing.T) {
	assert.IsType(t, LegacyParser{}, NewParser(ParserLegacy, "+1"))
	assert.IsType(t, TableParser{}, NewParser(ParserTable, "+1"))
	assert.IsType(t, TableParser{}, NewParser("", "+1"))
}

func TestNumbering(t *testing.T) {
	doc, err := Numbering{}.LookupPhone(context.Background(), "+91", "9997260627")
	require.NoError(t, err)
	assert.Equal(t, true, doc["found"])
	assert.Equal(t, 0.5, doc["confidence"])

	doc, err = Numbering{}.LookupPhone(context.Background(), "+999", "12")
	require.NoError(t, err)
	assert.Equal(t, false, doc["found"])
}

type fakeLookup struct {
	name string
	doc  models.Document
	err  error
	cc   atomic.Value
}

func (f *fakeLookup) Name() string { return f.name }

func (f *fakeLookup) LookupPhone(_ context.Context, countryCode, number string) (models.Document, error) {
	f.cc.Store(countryCode + "|" + number)
	return f.doc, f.err
}

type fakeEmailSource struct {
	calls atomic.Int32
}

func (f *fakeEmailSource) Name() string { return "gravatar" }

func (f *fakeEmailSource) Lookup(_ context.Context, email string) (models.Document, error) {
	f.calls.Add(1)
	return models.Document{"found": email == "owner@example.com", "source": "gravatar"}, nil
}

func newTestAdapter(lookups []Lookup, opts ...Option) *Adapter {
	b := normalize.NewBuilder()
	RegisterMappers(b)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(b.Build(nil), lookups, opts...)
}

func TestSearchPhone(t *testing.T) {
	hlr := &fakeLookup{name: "hlr", doc: models.Document{"found": true, "source": "hlr", "confidence": 0.8}}
	leak := &fakeLookup{name: "leakcheck", doc: models.Document{
		"found":  true,
		"source": "leakcheck",
		"data": models.Document{"entries": []any{
			models.Document{"email": "Owner@Example.com", "breach": "x"},
			models.Document{"email": "other@example.com"},
		}},
	}}
	broken := &fakeLookup{name: "broken", err: errors.New("boom")}
	linked := &fakeEmailSource{}

	a := newTestAdapter([]Lookup{hlr, leak, broken}, WithLinkedEmail(linked, 0))
	env, err := a.SearchPhone(context.Background(), "+91", "9997260627")
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Equal(t, "Phone lookup completed successfully", env.Message)
	assert.Equal(t, "+919997260627", env.Data["phone"])
	assert.Equal(t, "+91", env.Data["country_code"])
	assert.Equal(t, "9997260627", env.Data["phone_number"])
	assert.Equal(t, []string{"owner@example.com", "other@example.com"}, env.Data["linked_emails"])
	assert.Equal(t, "+91|9997260627", hlr.cc.Load())
	assert.Equal(t, int32(2), linked.calls.Load())

	lookups, ok := models.LookupsFrom(env.Data["lookup_results"])
	require.True(t, ok)
	require.Len(t, lookups, 4)
	assert.Equal(t, []string{"hlr", "leakcheck", "broken", LinkedEmailSource},
		[]string{lookups[0].Source, lookups[1].Source, lookups[2].Source, lookups[3].Source})
	assert.Equal(t, "boom", lookups[2].Data["error"])
	assert.Equal(t, true, lookups[3].Data["found"])

	summary, ok := models.SummaryFrom(env.Data["summary"])
	require.True(t, ok)
	assert.Equal(t, 4, summary.TotalSources)
	assert.Equal(t, 3, summary.SuccessfulSources)
	assert.Equal(t, 1, summary.FailedSources)
	assert.InDelta(t, 0.75, env.Data["confidence_score"], 1e-9)
	assert.Equal(t, "high", env.Metadata["data_completeness"])
}

func TestSearchPhoneWithoutFindings(t *testing.T) {
	miss := &fakeLookup{name: "hlr", doc: models.Document{"found": false, "source": "hlr"}}
	linked := &fakeEmailSource{}

	a := newTestAdapter([]Lookup{miss}, WithLinkedEmail(linked, 3))
	env, err := a.SearchPhone(context.Background(), "+1", "4155550123")
	require.NoError(t, err)

	assert.True(t, env.Success, "no findings is still a completed lookup")
	assert.NotContains(t, env.Data, "linked_emails")
	assert.Equal(t, int32(0), linked.calls.Load())
	assert.Equal(t, "low", env.Metadata["data_completeness"])
	assert.Equal(t, 0.0, env.Data["confidence_score"])
}

func TestLinkedEmailsLimit(t *testing.T) {
	outcomes := []sources.Outcome{
		{Source: "a", Data: models.Document{"found": true, "data": "x1@a.io, x2@a.io"}},
		{Source: "b", Data: models.Document{"found": false, "data": "hidden@a.io"}},
		{Source: "c", Data: models.Document{"found": true, "data": []string{"x2@a.io", "x3@a.io", "x4@a.io"}}},
	}
	assert.Equal(t, []string{"x1@a.io", "x2@a.io", "x3@a.io"}, LinkedEmails(outcomes, 3))
}

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

func TestHLR(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/hlr-lookup", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"msisdn":"+919997260627","connectivity_status":"CONNECTED","original_network_name":"Jio","is_ported":true}`))
	})

	doc, err := NewHLR(client).LookupPhone(context.Background(), "+91", "9997260627")
	require.NoError(t, err)
	assert.Equal(t, true, doc["found"])
	assert.Equal(t, 0.8, doc["confidence"])
	data := doc["data"].(models.Document)
	assert.Equal(t, "Jio", data["network"])
	assert.Equal(t, true, data["ported"])
}

func TestLeakCheck(t *testing.T) {
	var queries []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Path)
		assert.Equal(t, "phone", r.URL.Query().Get("type"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v2/query/919997260627" {
			_, _ = w.Write([]byte(`{"success":true,"found":1,"result":[{"email":"a@b.io","source":{"name":"Leak","breach_date":"2021-04"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false}`))
	})

	doc, err := NewLeakCheck(client, nil).LookupPhone(context.Background(), "+91", "9997260627")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/v2/query/9997260627", "/api/v2/query/919997260627"}, queries)
	assert.Equal(t, true, doc["found"])
	data := doc["data"].(models.Document)
	assert.Equal(t, 1, data["count"])
}

func TestLeakCheckAllQueriesFail(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := NewLeakCheck(client, nil).LookupPhone(context.Background(), "+91", "9997260627")
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusUnauthorized, terr.Status)
}
