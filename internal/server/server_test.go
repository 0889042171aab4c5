package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	pointsdomain "github.com/smallbiznis/loyalty/internal/points/domain"
	redemptiondomain "github.com/smallbiznis/loyalty/internal/redemption/domain"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRedemptionService struct {
	mock.Mock
}

func (m *mockRedemptionService) Redeem(ctx context.Context, req redemptiondomain.RedeemRequest) (redemptiondomain.RedemptionResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(redemptiondomain.RedemptionResult), args.Error(1)
}

func (m *mockRedemptionService) ListHistory(ctx context.Context, req redemptiondomain.ListHistoryRequest) (redemptiondomain.ListHistoryResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(redemptiondomain.ListHistoryResponse), args.Error(1)
}

type mockPointsService struct {
	mock.Mock
}

func (m *mockPointsService) Grant(ctx context.Context, req pointsdomain.GrantRequest) (pointsdomain.GrantResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(pointsdomain.GrantResult), args.Error(1)
}

func (m *mockPointsService) GetBalance(ctx context.Context, userID snowflake.ID) (pointsdomain.Balance, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(pointsdomain.Balance), args.Error(1)
}

func newTestServer(redemptions *mockRedemptionService, points *mockPointsService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{Gin: r, RedemptionSvc: redemptions, PointsSvc: points})
	return r
}

func doRequest(r http.Handler, method, path, key string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(headerIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRedeemWritesStoredResponse(t *testing.T) {
	redemptions := &mockRedemptionService{}
	stored := json.RawMessage(`{"redemption":{"id":"9","payload":{"idempotency_key":"abc","code":"CPN01"}},"item":{"id":"5"}}`)
	redemptions.On("Redeem", mock.Anything, redemptiondomain.RedeemRequest{
		UserID:         42,
		ItemID:         5,
		IdempotencyKey: "abc",
	}).Return(redemptiondomain.RedemptionResult{Response: stored, Replayed: true}, nil)

	r := newTestServer(redemptions, &mockPointsService{})
	w := doRequest(r, http.MethodPost, "/v1/users/42/redemptions", "abc", []byte(`{"item_id":"5"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"data":`+string(stored)+`}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get(headerReplayed))
	redemptions.AssertExpectations(t)
}

func TestRedeemMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"missing key", redemptiondomain.ErrMissingIdempotencyKey, http.StatusBadRequest, "validation_error"},
		{"not found", redemptiondomain.ErrItemNotFound, http.StatusNotFound, "not_found"},
		{"unavailable", redemptiondomain.ErrItemUnavailable, http.StatusUnprocessableEntity, "redemption_rejected"},
		{"out of stock", redemptiondomain.ErrOutOfStock, http.StatusUnprocessableEntity, "redemption_rejected"},
		{"insufficient", redemptiondomain.ErrInsufficientPoints, http.StatusUnprocessableEntity, "redemption_rejected"},
		{"in progress", redemptiondomain.ErrRedemptionInProgress, http.StatusConflict, "conflict"},
		{"unexpected", context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			redemptions := &mockRedemptionService{}
			redemptions.On("Redeem", mock.Anything, mock.Anything).Return(redemptiondomain.RedemptionResult{}, tc.err)

			r := newTestServer(redemptions, &mockPointsService{})
			w := doRequest(r, http.MethodPost, "/v1/users/42/redemptions", "k", []byte(`{"item_id":"5"}`))

			require.Equal(t, tc.status, w.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.typ, resp.Error.Type)
		})
	}
}

func TestRedeemRejectsBadInput(t *testing.T) {
	redemptions := &mockRedemptionService{}
	r := newTestServer(redemptions, &mockPointsService{})

	w := doRequest(r, http.MethodPost, "/v1/users/not-a-number/redemptions", "k", []byte(`{"item_id":"5"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/v1/users/42/redemptions", "k", []byte(`{"item_id":"x"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/v1/users/42/redemptions", "k", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	redemptions.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything)
}

func TestListRedemptionsPassesPagination(t *testing.T) {
	redemptions := &mockRedemptionService{}
	redemptions.On("ListHistory", mock.Anything, redemptiondomain.ListHistoryRequest{
		UserID:    42,
		PageToken: "tok",
		PageSize:  10,
	}).Return(redemptiondomain.ListHistoryResponse{
		PageInfo:    pagination.PageInfo{HasMore: true, NextPageToken: "next"},
		Redemptions: []redemptiondomain.RedemptionRecord{{ID: 1, UserID: 42, Status: redemptiondomain.StatusSuccess, Payload: []byte(`{}`)}},
	}, nil)

	r := newTestServer(redemptions, &mockPointsService{})
	w := doRequest(r, http.MethodGet, "/v1/users/42/redemptions?page_token=tok&page_size=10", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data     []map[string]any    `json:"data"`
		PageInfo pagination.PageInfo `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.True(t, resp.PageInfo.HasMore)
	assert.Equal(t, "next", resp.PageInfo.NextPageToken)
	redemptions.AssertExpectations(t)
}

func TestGetBalance(t *testing.T) {
	points := &mockPointsService{}
	soonest := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	points.On("GetBalance", mock.Anything, snowflake.ID(42)).Return(pointsdomain.Balance{
		UserID:          42,
		Cached:          120,
		Available:       100,
		ExpiringSoonest: &soonest,
	}, nil)

	r := newTestServer(&mockRedemptionService{}, points)
	w := doRequest(r, http.MethodGet, "/v1/users/42/balance", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data pointsdomain.Balance `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(120), resp.Data.Cached)
	assert.Equal(t, int64(100), resp.Data.Available)
	points.AssertExpectations(t)
}
