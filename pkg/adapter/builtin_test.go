package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/models"
)

func testConfig(endpoint string) config.AdapterConfig {
	return config.AdapterConfig{
		Endpoint: endpoint,
		Timeout:  5 * time.Second,
	}
}

func TestTrackingAPINotFoundIsPositiveEvidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/loads/614258134", r.URL.Path)
		http.Error(w, `{"error":"no such load"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	a, err := newBuiltin("tracking-api", testConfig(srv.URL))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), Query{
		Identifiers: models.Identifiers{models.SlotTrackingID: "614258134"},
	})
	require.NoError(t, err, "not-found is a normal outcome, not an error")
	require.Len(t, res.Findings, 1)

	f := res.Findings[0]
	assert.Contains(t, f.Finding, "load 614258134 not found in tracking system")
	assert.True(t, f.Supports)
	assert.Equal(t, models.WeightCritical, f.Weight)
	assert.Equal(t, 1.0, f.SourceConfidence)
}

func TestTrackingAPITrackingNotRequested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"load_id":"L-88","tracking_enabled":false,"status":"booked"}`))
	}))
	defer srv.Close()

	a, err := newBuiltin("tracking-api", testConfig(srv.URL))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), Query{
		Identifiers: models.Identifiers{models.SlotLoadNumber: "U110123982"},
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Contains(t, res.Findings[0].Finding, "tracking not requested")
	assert.True(t, res.Findings[0].Supports)
	assert.Equal(t, "L-88", res.Context["load_id"], "load id carried for dependent adapters")
}

func TestTrackingAPIHealthyLoadCountsAgainst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"load_id":"L-1","tracking_enabled":true,"status":"in_transit","last_update":"2026-03-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	a, err := newBuiltin("tracking-api", testConfig(srv.URL))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), Query{
		Identifiers: models.Identifiers{models.SlotTrackingID: "X1"},
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.False(t, res.Findings[0].Supports, "a present, tracked load opposes absence hypotheses")
}

func TestNetworkRelationshipMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "S1", r.URL.Query().Get("shipper"))
		assert.Equal(t, "C1", r.URL.Query().Get("carrier"))
		w.Write([]byte(`{"relationships":[{"id":"r-9","status":"terminated"}]}`))
	}))
	defer srv.Close()

	a, err := newBuiltin("network-relationship", testConfig(srv.URL))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), Query{
		Identifiers: models.Identifiers{
			models.SlotShipperID: "S1",
			models.SlotCarrierID: "C1",
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "no active relationship between S1 and C1", res.Findings[0].Finding)
	assert.True(t, res.Findings[0].Supports)
	assert.Equal(t, models.WeightCritical, res.Findings[0].Weight)
}

func TestNetworkRelationshipActiveCarriesContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"relationships":[{"id":"r-7","status":"active"}]}`))
	}))
	defer srv.Close()

	a, err := newBuiltin("network-relationship", testConfig(srv.URL))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), Query{
		Identifiers: models.Identifiers{
			models.SlotShipperID: "S1",
			models.SlotCarrierID: "C1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "r-7", res.Context["relationship_id"])
	require.Len(t, res.Findings, 1)
	assert.False(t, res.Findings[0].Supports)
}

func TestHistoricalWarehouseChunksWindow(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"unmatched":[]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ChunkDays = 7
	a, err := newBuiltin("historical-warehouse", cfg)
	require.NoError(t, err)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = a.Execute(context.Background(), Query{
		Identifiers: models.Identifiers{models.SlotTrackingID: "X1"},
		Window:      Window{From: from, To: from.Add(30 * 24 * time.Hour)},
		Context:     map[string]string{"relationship_id": "r-7"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, requests, "30 days in 7-day chunks is 5 requests")
}

func TestInternalConfigELDOnlyForOTR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"eld_enabled":false,"tracking_methods":["edi"]}`))
	}))
	defer srv.Close()

	a, err := newBuiltin("internal-config", testConfig(srv.URL))
	require.NoError(t, err)

	q := Query{
		Identifiers: models.Identifiers{models.SlotCarrierID: "C1"},
		Mode:        models.ModeOTR,
	}
	res, err := a.Execute(context.Background(), q)
	require.NoError(t, err)
	var findings []string
	for _, f := range res.Findings {
		findings = append(findings, f.Finding)
	}
	assert.Contains(t, findings[0], "eld integration not enabled")

	// The same response under ocean mode has no ELD angle.
	q.Mode = models.ModeOcean
	res, err = a.Execute(context.Background(), q)
	require.NoError(t, err)
	for _, f := range res.Findings {
		assert.NotContains(t, f.Finding, "eld")
	}
}

func TestAuthHeaders(t *testing.T) {
	t.Setenv("TEST_ADAPTER_KEY", "sekret")

	var gotKey, gotSig, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotSig = r.Header.Get("X-Signature")
		gotDate = r.Header.Get("X-Signature-Date")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	t.Run("api-key", func(t *testing.T) {
		cfg := testConfig(srv.URL)
		cfg.Auth = config.AuthAPIKey
		cfg.CredentialEnv = "TEST_ADAPTER_KEY"

		src := newHTTPSource("x", cfg)
		_, err := src.getJSON(context.Background(), "/v1/ping", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "sekret", gotKey)
	})

	t.Run("hmac-sha1", func(t *testing.T) {
		cfg := testConfig(srv.URL)
		cfg.Auth = config.AuthHMACSHA1
		cfg.CredentialEnv = "TEST_ADAPTER_KEY"

		src := newHTTPSource("x", cfg)
		_, err := src.getJSON(context.Background(), "/v1/ping", nil, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, gotSig)
		assert.NotEmpty(t, gotDate)
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
		isErr  bool
	}{
		{200, "", false},
		{204, "", false},
		{401, ErrAuth, true},
		{403, ErrAuth, true},
		{404, ErrNotFound, true},
		{408, ErrTransient, true},
		{429, ErrTransient, true},
		{500, ErrTransient, true},
		{503, ErrTransient, true},
		{400, ErrMalformed, true},
		{422, ErrMalformed, true},
	}

	for _, tt := range tests {
		kind, isErr := classifyStatus(tt.status)
		assert.Equal(t, tt.isErr, isErr, "status %d", tt.status)
		assert.Equal(t, tt.kind, kind, "status %d", tt.status)
	}
}

func TestChunkWindow(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("splits and truncates", func(t *testing.T) {
		chunks := chunkWindow(Window{From: from, To: from.Add(30 * 24 * time.Hour)}, 7)
		require.Len(t, chunks, 5)
		assert.Equal(t, from, chunks[0].From)
		assert.Equal(t, from.Add(30*24*time.Hour), chunks[4].To)
		assert.Equal(t, 2*24*time.Hour, chunks[4].To.Sub(chunks[4].From))
	})

	t.Run("zero window passes through", func(t *testing.T) {
		chunks := chunkWindow(Window{}, 7)
		require.Len(t, chunks, 1)
		assert.True(t, chunks[0].From.IsZero())
	})
}

func TestApplicable(t *testing.T) {
	reg, err := NewBuiltinRegistry(&config.Config{Adapters: map[string]config.AdapterConfig{}})
	require.NoError(t, err)

	ocean, ok := reg.Get("ocean-events")
	require.True(t, ok)
	rel, ok := reg.Get("network-relationship")
	require.True(t, ok)

	q := Query{
		Identifiers: models.Identifiers{models.SlotTrackingID: "X1"},
		Mode:        models.ModeOTR,
	}
	assert.False(t, Applicable(ocean, q), "ocean-events is mode-scoped")
	assert.False(t, Applicable(rel, q), "relationship check needs shipper and carrier")

	q.Mode = models.ModeOcean
	q.Identifiers[models.SlotShipperID] = "S1"
	q.Identifiers[models.SlotCarrierID] = "C1"
	assert.True(t, Applicable(ocean, q))
	assert.True(t, Applicable(rel, q))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeAdapter{name: "b"}))
	require.NoError(t, reg.Register(&fakeAdapter{name: "a"}))
	assert.Error(t, reg.Register(&fakeAdapter{name: "a"}), "duplicate names rejected")

	assert.Equal(t, []string{"a", "b"}, reg.Names())

	sel := reg.Select([]string{"a", "missing"})
	require.Len(t, sel, 1)
	assert.Equal(t, "a", sel[0].Name())

	all := reg.Select(nil)
	assert.Len(t, all, 2)
}
