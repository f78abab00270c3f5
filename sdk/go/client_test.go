package onboardlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tasks/missing/blocker", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"task missing: not found"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).SetBlocker(context.Background(), "missing", "vpn")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClientAuditQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audit", r.URL.Path)
		assert.Equal(t, "task_escalated", r.URL.Query().Get("event_type"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("offset"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"id": "01J", "event_type": "task_escalated", "entity_type": "task", "entity_id": "t1"}},
		})
	}))
	defer srv.Close()

	recs, err := New(srv.URL+"/").Audit(context.Background(), AuditQuery{EventType: "task_escalated", Limit: 25})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "t1", recs[0].EntityID)
}

func TestClientCreateOnboardingPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"name": "Lakeside"}, body["customer"])
		assert.Equal(t, "2026-06-01", body["go_live_date"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"onboarding": map[string]any{"id": "ob-1", "status": "active"}})
	}))
	defer srv.Close()

	detail, err := New(srv.URL).CreateOnboarding(context.Background(), CreateOnboardingInput{
		CustomerName: "Lakeside",
		GoLiveDate:   "2026-06-01",
		Stakeholders: []Stakeholder{{Role: "owner", Name: "Olga", Email: "olga@lakeside.edu"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ob-1", detail.Onboarding.ID)
}
