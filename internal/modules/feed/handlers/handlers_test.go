package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-app/tidemark/internal/config"
	"github.com/tidemark-app/tidemark/internal/domain"
	"github.com/tidemark-app/tidemark/internal/modules/feed"
)

type stubEventStore struct {
	events []domain.FeedEvent
}

func (s *stubEventStore) QueryEvents(_ context.Context, _ string, opts domain.EventQueryOptions) ([]domain.FeedEvent, error) {
	if len(opts.DataTypes) > 0 || opts.NewerThan != "" && opts.OlderThan == "" {
		return nil, nil
	}
	return s.events, nil
}

func (s *stubEventStore) GetNews(context.Context, []string) ([]domain.News, error) {
	return nil, nil
}

func (s *stubEventStore) GetDisinterestedContractIDs(context.Context, string, []string) (map[string]bool, error) {
	return nil, nil
}

func (s *stubEventStore) GetSeenCommentIDs(context.Context, string, []string, time.Time) (map[string]bool, error) {
	return nil, nil
}

func (s *stubEventStore) GetBoosts(context.Context, string) ([]domain.Boost, error) {
	return []domain.Boost{{ID: "b1", ContractID: "sponsored"}}, nil
}

type stubDocStore struct {
	contracts []domain.Contract
}

func (s *stubDocStore) GetContracts(context.Context, []string) ([]domain.Contract, error) {
	return s.contracts, nil
}

func (s *stubDocStore) GetComments(context.Context, []string, int) ([]domain.Comment, error) {
	return nil, nil
}

type stubViewers struct{}

func (stubViewers) GetPrivateUser(context.Context, string) (*domain.PrivateUser, error) {
	return nil, nil
}

func newTestRouter(events domain.EventStore, docs domain.DocumentStore) chi.Router {
	cfg := config.FeedConfig{
		PageSize:              25,
		HighSignalCap:         15,
		UnseenHorizon:         5 * 24 * time.Hour,
		CommentSeenWindow:     5 * 24 * time.Hour,
		BootstrapAttempts:     2,
		BootstrapMinimum:      1,
		MinCommentLikes:       1,
		SignificanceThreshold: 0.055,
		LivePushInterval:      30 * time.Second,
	}
	service := feed.NewService(events, docs, stubViewers{}, cfg, zerolog.Nop())
	handler := NewHandler(service, zerolog.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router chi.Router, method, path, userID string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetFeed_RequiresUser(t *testing.T) {
	router := newTestRouter(&stubEventStore{}, &stubDocStore{})

	rec := doRequest(t, router, http.MethodGet, "/feed", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGetFeed_BootstrapsOnFirstAccess(t *testing.T) {
	now := time.Now()
	closeTime := now.Add(24 * time.Hour).UnixMilli()
	contractID := "m1"
	events := &stubEventStore{events: []domain.FeedEvent{{
		ID:               1,
		UserID:           "user-1",
		DataType:         domain.DataTypeNewContract,
		Reason:           domain.ReasonFollowedUser,
		CreatedTime:      now.Add(-time.Hour).UnixMilli(),
		CreatedTimestamp: feed.FormatTimestamp(now.Add(-time.Hour)),
		ContractID:       &contractID,
	}}}
	docs := &stubDocStore{contracts: []domain.Contract{{
		ID:          "m1",
		CreatorID:   "creator-1",
		Mechanism:   domain.MechanismCPMM,
		Prob:        0.5,
		CreatedTime: now.Add(-10 * 24 * time.Hour).UnixMilli(),
		CloseTime:   &closeTime,
	}}}
	router := newTestRouter(events, docs)

	rec := doRequest(t, router, http.MethodGet, "/feed", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []domain.TimelineItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "m1", *resp.Items[0].ContractID)
	require.NotNil(t, resp.Items[0].Contract)
}

func TestHandleGetFeed_EmptyStoreReturnsEmptyList(t *testing.T) {
	router := newTestRouter(&stubEventStore{}, &stubDocStore{})

	rec := doRequest(t, router, http.MethodGet, "/feed", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	// Loaded-but-empty is [], not null.
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestHandleCheckNewer_NothingNewIsEmptyList(t *testing.T) {
	router := newTestRouter(&stubEventStore{}, &stubDocStore{})

	rec := doRequest(t, router, http.MethodGet, "/feed/newer", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestHandleMergeItems(t *testing.T) {
	router := newTestRouter(&stubEventStore{}, &stubDocStore{})

	item := domain.TimelineItem{
		ID:               42,
		DataType:         domain.DataTypeNewContract,
		Reason:           domain.ReasonFollowedUser,
		CreatedTime:      time.Now().UnixMilli(),
		CreatedTimestamp: feed.FormatTimestamp(time.Now()),
	}
	body, err := json.Marshal(MergeRequest{Items: []domain.TimelineItem{item}, New: true})
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/feed/items", "user-1", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []domain.TimelineItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(42), resp.Items[0].ID)
}

func TestHandleMergeItems_BadBody(t *testing.T) {
	router := newTestRouter(&stubEventStore{}, &stubDocStore{})

	rec := doRequest(t, router, http.MethodPost, "/feed/items", "user-1", []byte("{not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetBoosts(t *testing.T) {
	router := newTestRouter(&stubEventStore{}, &stubDocStore{})

	rec := doRequest(t, router, http.MethodGet, "/feed/boosts", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Boosts []domain.Boost `json:"boosts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Boosts, 1)
	assert.Equal(t, "b1", resp.Boosts[0].ID)
}
