package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupsMarshalKeepsOrder(t *testing.T) {
	l := Lookups{
		{Source: "whois", Data: Document{"found": true}},
		{Source: "dns_records", Data: Document{"error": "timeout", "type": "Timeout"}},
		{Source: "ssl_certificate", Data: Document{"found": false}},
	}
	out, err := json.Marshal(Document{"sources": l})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sources":{"whois":{"found":true},"dns_records":{"error":"timeout","type":"Timeout"},"ssl_certificate":{"found":false}}}`, string(out))

	raw, _ := l.MarshalJSON()
	assert.Regexp(t, `^\{"whois".*"dns_records".*"ssl_certificate"`, string(raw))
}

func TestLookupsFrom(t *testing.T) {
	t.Run("ordered value passes through", func(t *testing.T) {
		l := Lookups{{Source: "b"}, {Source: "a"}}
		got, ok := LookupsFrom(l)
		require.True(t, ok)
		assert.Equal(t, "b", got[0].Source)
	})

	t.Run("decoded object is sorted", func(t *testing.T) {
		got, ok := LookupsFrom(map[string]any{
			"skype":     map[string]any{"found": true},
			"leakcheck": map[string]any{"found": false},
		})
		require.True(t, ok)
		require.Len(t, got, 2)
		assert.Equal(t, "leakcheck", got[0].Source)
		assert.Equal(t, true, got[1].Data["found"])
	})

	t.Run("other values are rejected", func(t *testing.T) {
		_, ok := LookupsFrom([]any{"x"})
		assert.False(t, ok)
	})
}

func TestSummaryRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Summary{TotalSources: 4, SuccessfulSources: 3, FailedSources: 1, FoundData: true, Timestamp: ts}

	doc := s.Document()
	back, ok := SummaryFrom(doc)
	require.True(t, ok)
	assert.Equal(t, s, back)
	assert.InDelta(t, 0.75, back.Completeness(), 1e-9)

	encoded, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	fromJSON, ok := SummaryFrom(decoded)
	require.True(t, ok)
	assert.Equal(t, 3, fromJSON.SuccessfulSources)
}

func TestSummaryCompletenessEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Summary{}.Completeness())
}
