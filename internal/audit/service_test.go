package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagency/pdadesk/internal/shared"
)

type stubRepo struct {
	inserted  []Entry
	listLimit int
	listCo    int64
	entries   []Entry
	prunedAt  time.Time
	err       error
}

func (s *stubRepo) Insert(_ context.Context, entry Entry) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, entry)
	return nil
}

func (s *stubRepo) List(_ context.Context, companyID int64, limit int) ([]Entry, error) {
	s.listCo = companyID
	s.listLimit = limit
	return s.entries, s.err
}

func (s *stubRepo) Prune(_ context.Context, before time.Time) (int64, error) {
	s.prunedAt = before
	return 4, s.err
}

// =============================================================================
// Service
// =============================================================================

func TestPruneUsesRetentionCutoff(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	now := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)

	n, err := svc.Prune(context.Background(), now, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), repo.prunedAt)

	_, err = svc.Prune(context.Background(), now, 0)
	assert.Error(t, err)
}

func TestRecentClampsLimit(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	entries, err := svc.Recent(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Equal(t, defaultLimit, repo.listLimit)
	assert.Equal(t, int64(3), repo.listCo)

	_, err = svc.Recent(context.Background(), 3, 50000)
	require.NoError(t, err)
	assert.Equal(t, maxLimit, repo.listLimit)
}

func TestRecordDelegates(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	require.NoError(t, svc.Record(context.Background(), Entry{Action: ActionCreate, Entity: "pda", EntityID: "9"}))
	require.Len(t, repo.inserted, 1)

	repo.err = errors.New("db down")
	assert.Error(t, svc.Record(context.Background(), Entry{Action: ActionCreate, Entity: "pda"}))
}

func TestNewEntryUsesPrincipal(t *testing.T) {
	ctx := shared.ContextWithPrincipal(context.Background(), shared.Principal{UserID: 7, CompanyID: 2, Name: "ana"})
	e := NewEntry(ctx, ActionDelete, "calculation", "15", "")
	assert.Equal(t, int64(7), e.UserID)
	assert.Equal(t, int64(2), e.CompanyID)
	assert.Equal(t, "ana", e.Username)
	assert.Equal(t, "calculation", e.Entity)
}

// =============================================================================
// Handler
// =============================================================================

func TestHandlerListsCompanyEntries(t *testing.T) {
	repo := &stubRepo{entries: []Entry{{ID: 1, Action: ActionCreate, Entity: "pda", EntityID: "4"}}}
	h := NewHandler(nil, NewService(repo))
	r := chi.NewRouter()
	r.Route("/api/logs", h.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/logs/?limit=5", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{CompanyID: 11}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got []Entry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "pda", got[0].Entity)
	assert.Equal(t, int64(11), repo.listCo)
	assert.Equal(t, 5, repo.listLimit)
}
