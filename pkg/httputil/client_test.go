package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsnap/pkg/logger"
)

func TestNew(t *testing.T) {
	client := New(logger.Nop(), 5*time.Second, 10)

	require.NotNil(t, client)
	assert.Equal(t, 5*time.Second, client.Timeout())
	assert.NotNil(t, client.limiter)
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","count":3}`))
	}))
	defer server.Close()

	client := New(logger.Nop(), 5*time.Second, 100)

	var out struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	header := http.Header{}
	header.Set("X-Api-Key", "key-1")

	err := client.GetJSON(context.Background(), server.URL, header, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 3, out.Count)
}

func TestGetJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`slow down`))
	}))
	defer server.Close()

	client := New(logger.Nop(), 5*time.Second, 100)

	var out map[string]interface{}
	err := client.GetJSON(context.Background(), server.URL, nil, &out)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "slow down", statusErr.Body)
}

func TestGetJSON_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(logger.Nop(), 20*time.Millisecond, 100)

	var out map[string]interface{}
	err := client.GetJSON(context.Background(), server.URL, nil, &out)
	require.Error(t, err)

	var timeoutErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &timeoutErr))
	assert.True(t, timeoutErr.Timeout())
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableStatus(tt.status), "status %d", tt.status)
	}
}
