package tradeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

func TestCloseAutomaticSuccess(t *testing.T) {
	var got closeRequest
	var gotPath, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", time.Second)
	err := c.CloseAutomatic(context.Background(), "pos-42", 1.09490, domain.ReasonStopLoss)
	require.NoError(t, err)

	assert.Equal(t, "/internal/positions/pos-42/close", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, 1.09490, got.Price)
	assert.Equal(t, "stop_loss", got.Reason)
	assert.NotEmpty(t, got.IdempotencyKey)
}

func TestCloseAutomaticConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	err := c.CloseAutomatic(context.Background(), "pos-42", 1.25000, domain.ReasonTakeProfit)
	assert.ErrorIs(t, err, domain.ErrCloseConflict)
}

func TestCloseAutomaticNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	err := c.CloseAutomatic(context.Background(), "missing", 1.0, domain.ReasonStopLoss)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseAutomaticServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"db unavailable"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	err := c.CloseAutomatic(context.Background(), "pos-42", 1.0, domain.ReasonStopLoss)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCloseConflict)
	assert.Contains(t, err.Error(), "db unavailable")
}

func TestCloseAutomaticUniqueIdempotencyKeys(t *testing.T) {
	keys := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req closeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		keys[req.IdempotencyKey]++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	require.NoError(t, c.CloseAutomatic(context.Background(), "pos-1", 1.0, domain.ReasonStopLoss))
	require.NoError(t, c.CloseAutomatic(context.Background(), "pos-1", 1.0, domain.ReasonStopLoss))

	assert.Len(t, keys, 2, "every attempt carries a fresh key")
}
