package email

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
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

type stubResolver struct {
	records []*net.MX
	err     error
	asked   string
}

func (s *stubResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	s.asked = name
	return s.records, s.err
}

func TestValidator(t *testing.T) {
	ctx := context.Background()

	t.Run("sorts mx hosts by preference", func(t *testing.T) {
		r := &stubResolver{records: []*net.MX{
			{Host: "alt.mx.example.com.", Pref: 20},
			{Host: "mx.example.com.", Pref: 10},
		}}
		doc, err := NewValidator(r).Lookup(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, "example.com", r.asked)
		assert.Equal(t, true, doc["found"])
		data := doc["data"].(models.Document)
		assert.Equal(t, []string{"mx.example.com", "alt.mx.example.com"}, data["mx_records"])
	})

	t.Run("bad syntax skips dns", func(t *testing.T) {
		r := &stubResolver{}
		doc, err := NewValidator(r).Lookup(ctx, "not-an-email")
		require.NoError(t, err)
		assert.Equal(t, false, doc["found"])
		assert.Empty(t, r.asked)
	})

	t.Run("missing domain is not an error", func(t *testing.T) {
		r := &stubResolver{err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}
		doc, err := NewValidator(r).Lookup(ctx, "user@nope.invalid")
		require.NoError(t, err)
		assert.Equal(t, false, doc["found"])
	})

	t.Run("resolver failure is reported", func(t *testing.T) {
		r := &stubResolver{err: &net.DNSError{Err: "server misbehaving", IsTemporary: true}}
		_, err := NewValidator(r).Lookup(ctx, "user@example.com")
		require.Error(t, err)
	})
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

func TestGravatar(t *testing.T) {
	sum := sha256.Sum256([]byte("user@example.com"))
	hash := hex.EncodeToString(sum[:])

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+hash+".json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entry":[{"preferredUsername":"user","displayName":"A User","profileUrl":"https://gravatar.com/user","urls":[{"title":"blog","value":"https://blog.example.com"}]}]}`))
	})
	g := NewGravatar(client)

	doc, err := g.Lookup(context.Background(), " User@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, true, doc["found"])
	data := doc["data"].(models.Document)
	assert.Equal(t, "A User", data["display_name"])
	assert.Equal(t, []string{"https://blog.example.com"}, data["urls"])

	doc, err = g.Lookup(context.Background(), "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, false, doc["found"])
}

func TestBreach(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("truncateResponse"))
		if r.URL.Path != "/breachedaccount/user@example.com" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Name":"Adobe","Domain":"adobe.com","BreachDate":"2013-10-04","PwnCount":152445165,"DataClasses":["Email addresses","Passwords"]}]`))
	})
	b := NewBreach(client)

	doc, err := b.Lookup(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, true, doc["found"])
	assert.Equal(t, 0.9, doc["confidence"])
	data := doc["data"].(models.Document)
	assert.Equal(t, 1, data["breach_count"])

	doc, err = b.Lookup(context.Background(), "clean@example.com")
	require.NoError(t, err)
	assert.Equal(t, false, doc["found"])
}

func TestSearchEmail(t *testing.T) {
	b := normalize.NewBuilder()
	RegisterMappers(b)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	subs := []sources.SubSource{
		sources.NewFunc("email_validator", func(_ context.Context, q string) (models.Document, error) {
			return models.Document{"found": true, "source": "email_validator", "data": models.Document{"email": q}}, nil
		}),
		sources.NewFunc("gravatar", func(context.Context, string) (models.Document, error) {
			return models.Document{"found": false, "source": "gravatar"}, nil
		}),
		sources.NewFunc("breach", func(context.Context, string) (models.Document, error) {
			return nil, errors.New("upstream down")
		}),
	}
	a := New(b.Build(nil), subs, WithClock(func() time.Time { return now }))

	env, err := a.SearchEmail(context.Background(), " Someone@Example.COM")
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, "Email lookup completed successfully", env.Message)
	assert.Equal(t, "someone@example.com", env.Data["email"])
	assert.Equal(t, "email_lookup", env.Metadata["source_type"])
	assert.InDelta(t, 1.0/3.0, env.Data["confidence_score"], 1e-9)

	lookups, ok := models.LookupsFrom(env.Data["lookup_results"])
	require.True(t, ok)
	require.Len(t, lookups, 3)
	assert.Equal(t, "email_validator", lookups[0].Source)
	assert.Equal(t, "upstream down", lookups[2].Data["error"])

	summary, _ := models.SummaryFrom(env.Data["summary"])
	assert.Equal(t, 1, summary.SuccessfulSources)
	assert.Equal(t, 2, summary.FailedSources)
	assert.True(t, now.Equal(summary.Timestamp))
}
