package brasilaberto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientFor(t *testing.T, baseURL string, maxAttempts int) *Client {
	t.Helper()
	return NewClient(Config{
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    maxAttempts,
		BaseURL:        baseURL,
	}, nil)
}

func TestComplement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/zipcode/05422010.json", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Bearer"))
		_, _ = w.Write([]byte(`{"result": {"complement": "de 500 até 1200 - lado par"}}`))
	}))
	defer srv.Close()

	client := newClientFor(t, srv.URL, 1)
	comp, err := client.Complement(context.Background(), "05422010")
	require.NoError(t, err)
	assert.Equal(t, "de 500 até 1200 - lado par", comp)
}

func TestComplementEmptyResultIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result": {}}`))
	}))
	defer srv.Close()

	client := newClientFor(t, srv.URL, 1)
	comp, err := client.Complement(context.Background(), "01310100")
	require.NoError(t, err)
	assert.Empty(t, comp)
}

func TestDistrictsSortsNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/districts/3550308", r.URL.Path)
		_, _ = w.Write([]byte(`{"result": [{"name": "Pinheiros"}, {"name": "Moema"}, {"name": "Lapa"}]}`))
	}))
	defer srv.Close()

	client := newClientFor(t, srv.URL, 1)
	districts, err := client.Districts(context.Background(), 3550308)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lapa", "Moema", "Pinheiros"}, districts)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"result": {"complement": "de 1 a 99"}}`))
	}))
	defer srv.Close()

	client := newClientFor(t, srv.URL, 5)
	comp, err := client.Complement(context.Background(), "05422010")
	require.NoError(t, err)
	assert.Equal(t, "de 1 a 99", comp)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExhaustsAttemptBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newClientFor(t, srv.URL, 2)
	_, err := client.Complement(context.Background(), "05422010")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempts exhausted")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHonorsCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result": {}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newClientFor(t, srv.URL, 3)
	_, err := client.Complement(ctx, "05422010")
	require.ErrorIs(t, err, context.Canceled)
}
