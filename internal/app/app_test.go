package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon/internal/platform/config"
	"recon/internal/search/models"
	"recon/internal/search/sources/domain"
	"recon/internal/search/sources/email"
	"recon/internal/search/sources/phone"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdaptersSkipUnconfiguredUpstreams(t *testing.T) {
	cfg := config.Default().Sources
	cfg.Gravatar.BaseURL = ""
	cfg.RDAP.BaseURL = ""
	cfg.RapidDNS.BaseURL = ""

	registry, err := Adapters(cfg, Mappers(quietLogger()), quietLogger())
	require.NoError(t, err)

	for st, name := range map[models.SearchType]string{
		models.SearchTypeEmail:  email.Name,
		models.SearchTypeDomain: domain.Name,
		models.SearchTypePhone:  phone.Name,
	} {
		adapters := registry.Adapters(st)
		require.Len(t, adapters, 1, st)
		assert.Equal(t, name, adapters[0].Name())
	}
	assert.Empty(t, registry.Adapters(models.SearchTypeUsername))
}

func TestBuildInMemoryServesSearches(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, config.Default(), quietLogger(), WithoutBackground())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx) })
	assert.Nil(t, a.Pool)

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body, _ := json.Marshal(map[string]string{"search_type": "username", "query": "alice"})
	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/searches", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created struct {
		SearchID string              `json:"search_id"`
		Status   models.SearchStatus `json:"status"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, models.SearchStatusFailed, created.Status, "username searches have no adapters")

	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/searches/"+created.SearchID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildStartsWorkerPool(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, config.Default(), quietLogger())
	require.NoError(t, err)
	require.NotNil(t, a.Pool)
	require.NoError(t, a.Shutdown(ctx))
}
