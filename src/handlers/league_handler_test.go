package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/muni-world/muni-fullstack/backend/src/league"
	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/models"
	"github.com/muni-world/muni-fullstack/backend/src/services"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// stubLeagueService returns canned rows per tier and records the tiers asked
// for.
type stubLeagueService struct {
	rows       map[league.Tier][]models.LeagueRow
	err        error
	tiersAsked []league.Tier
}

func (s *stubLeagueService) GetLeagueData(tier league.Tier) ([]models.LeagueRow, error) {
	s.tiersAsked = append(s.tiersAsked, tier)
	if s.err != nil {
		return nil, s.err
	}
	return s.rows[tier], nil
}

func (s *stubLeagueService) InvalidateCache() {}

var _ services.LeagueService = (*stubLeagueService)(nil)

func sampleRows(manager string) []models.LeagueRow {
	return []models.LeagueRow{
		{Rank: 1, LeadLeftManager: manager, AggregatePar: 10_000_000},
	}
}

func withClaims(r *http.Request, claims *league.Claims) *http.Request {
	ctx := context.WithValue(r.Context(), claimsContextKey, claims)
	return r.WithContext(ctx)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return envelope
}

func decodeRows(t *testing.T, raw json.RawMessage) []models.LeagueRow {
	t.Helper()
	var rows []models.LeagueRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatalf("data field did not decode as league rows: %v", err)
	}
	return rows
}

func TestPublicLeagueData(t *testing.T) {
	stub := &stubLeagueService{rows: map[league.Tier][]models.LeagueRow{
		league.TierGuest: sampleRows("Goldman Sachs"),
	}}
	h := NewLeagueHandler(stub)

	req := httptest.NewRequest("GET", "/api/league/public", nil)
	rec := httptest.NewRecorder()
	h.HandleGetPublicLeagueData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	if string(envelope["success"]) != "true" {
		t.Errorf("success = %s, want true", envelope["success"])
	}
	rows := decodeRows(t, envelope["data"])
	if len(rows) != 1 || rows[0].LeadLeftManager != "Goldman Sachs" {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if len(stub.tiersAsked) != 1 || stub.tiersAsked[0] != league.TierGuest {
		t.Errorf("tiers asked = %v, want [guest]", stub.tiersAsked)
	}
}

func TestPublicLeagueDataDegradesToEmpty(t *testing.T) {
	stub := &stubLeagueService{err: errors.New("storage down")}
	h := NewLeagueHandler(stub)

	req := httptest.NewRequest("GET", "/api/league/public", nil)
	rec := httptest.NewRecorder()
	h.HandleGetPublicLeagueData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	if string(envelope["success"]) != "true" {
		t.Errorf("success = %s, want true", envelope["success"])
	}
	if string(envelope["data"]) != "[]" {
		t.Errorf("data = %s, want []", envelope["data"])
	}
}

func TestAuthenticatedLeagueDataRequiresClaims(t *testing.T) {
	stub := &stubLeagueService{}
	h := NewLeagueHandler(stub)

	req := httptest.NewRequest("GET", "/api/league/authenticated", nil)
	rec := httptest.NewRecorder()
	h.HandleGetAuthenticatedLeagueData(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	if string(envelope["success"]) != "false" {
		t.Errorf("success = %s, want false", envelope["success"])
	}
	if len(stub.tiersAsked) != 0 {
		t.Errorf("service should not have been called, got %v", stub.tiersAsked)
	}
}

func TestAuthenticatedLeagueDataResolvesTier(t *testing.T) {
	tests := []struct {
		name     string
		claims   *league.Claims
		wantTier league.Tier
	}{
		{"free tier claim", &league.Claims{UserID: "7", TierAttribute: "free"}, league.TierFree},
		{"subscriber tier claim", &league.Claims{UserID: "8", TierAttribute: "subscriber"}, league.TierSubscriber},
		{"premium alias", &league.Claims{UserID: "9", TierAttribute: "premium"}, league.TierSubscriber},
		{"unknown tier falls back to guest", &league.Claims{UserID: "10", TierAttribute: "vip"}, league.TierGuest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubLeagueService{rows: map[league.Tier][]models.LeagueRow{
				tt.wantTier: sampleRows("JP Morgan"),
			}}
			h := NewLeagueHandler(stub)

			req := withClaims(httptest.NewRequest("GET", "/api/league/authenticated", nil), tt.claims)
			rec := httptest.NewRecorder()
			h.HandleGetAuthenticatedLeagueData(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if len(stub.tiersAsked) != 1 || stub.tiersAsked[0] != tt.wantTier {
				t.Errorf("tiers asked = %v, want [%s]", stub.tiersAsked, tt.wantTier)
			}
		})
	}
}

func TestAuthenticatedLeagueDataUpstreamFailure(t *testing.T) {
	stub := &stubLeagueService{err: errors.New("storage down")}
	h := NewLeagueHandler(stub)

	req := withClaims(httptest.NewRequest("GET", "/api/league/authenticated", nil),
		&league.Claims{UserID: "7", TierAttribute: "free"})
	rec := httptest.NewRecorder()
	h.HandleGetAuthenticatedLeagueData(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	var msg string
	if err := json.Unmarshal(envelope["error"], &msg); err != nil {
		t.Fatalf("error field did not decode: %v", err)
	}
	if msg != "Failed to fetch league data" {
		t.Errorf("error = %q, leaks internals?", msg)
	}
}

func TestSubscriberLeagueDataAccess(t *testing.T) {
	tests := []struct {
		name       string
		claims     *league.Claims
		wantStatus int
	}{
		{"no claims", nil, http.StatusUnauthorized},
		{"guest claim", &league.Claims{UserID: "1", TierAttribute: ""}, http.StatusForbidden},
		{"free tier", &league.Claims{UserID: "2", TierAttribute: "free"}, http.StatusForbidden},
		{"subscriber", &league.Claims{UserID: "3", TierAttribute: "subscriber"}, http.StatusOK},
		{"premium alias", &league.Claims{UserID: "4", TierAttribute: "premium"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubLeagueService{rows: map[league.Tier][]models.LeagueRow{
				league.TierSubscriber: sampleRows("Morgan Stanley"),
			}}
			h := NewLeagueHandler(stub)

			req := httptest.NewRequest("GET", "/api/league/subscriber", nil)
			if tt.claims != nil {
				req = withClaims(req, tt.claims)
			}
			rec := httptest.NewRecorder()
			h.HandleGetSubscriberLeagueData(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK && len(stub.tiersAsked) != 0 {
				t.Errorf("service called for a denied request: %v", stub.tiersAsked)
			}
		})
	}
}

func TestLeagueResponseETag(t *testing.T) {
	stub := &stubLeagueService{rows: map[league.Tier][]models.LeagueRow{
		league.TierGuest: sampleRows("Goldman Sachs"),
	}}
	h := NewLeagueHandler(stub)

	req := httptest.NewRequest("GET", "/api/league/public", nil)
	rec := httptest.NewRecorder()
	h.HandleGetPublicLeagueData(rec, req)

	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("ETag header missing")
	}

	req = httptest.NewRequest("GET", "/api/league/public", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.HandleGetPublicLeagueData(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 response must have no body, got %q", rec.Body.String())
	}
}
