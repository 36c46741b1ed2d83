package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientPostsPayloadVerbatim(t *testing.T) {
	payload := []byte(`{"ref":"main","bytes":"éxact"}`)
	var received []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(DefaultTimeouts())
	defer client.Close()

	result := client.Post(context.Background(), srv.URL, payload)
	require.IsType(t, Success{}, result)
	require.Equal(t, payload, received)
	require.Equal(t, "application/json", contentType)
}

func TestClientClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(DefaultTimeouts())
	defer client.Close()

	failure, ok := client.Post(context.Background(), srv.URL, []byte(`{}`)).(Failure)
	require.True(t, ok)
	require.True(t, failure.Retryable)
	require.Equal(t, http.StatusInternalServerError, failure.StatusCode)
}

func TestClientClassifiesClientErrorAsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad shape", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(DefaultTimeouts())
	defer client.Close()

	failure, ok := client.Post(context.Background(), srv.URL, []byte(`{}`)).(Failure)
	require.True(t, ok)
	require.False(t, failure.Retryable)
	require.Equal(t, "HTTP 400", failure.Message)
}

func TestClientConnectionRefusedIsRetryable(t *testing.T) {
	client := NewClient(DefaultTimeouts())
	defer client.Close()

	// Reserved port with nothing listening.
	failure, ok := client.Post(context.Background(), "http://127.0.0.1:1", []byte(`{}`)).(Failure)
	require.True(t, ok)
	require.True(t, failure.Retryable)
	require.Zero(t, failure.StatusCode)
}

func TestClientHonoursRequestBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := NewClient(Timeouts{Connect: time.Second, Socket: time.Second, Request: 150 * time.Millisecond})
	defer client.Close()

	start := time.Now()
	failure, ok := client.Post(context.Background(), srv.URL, []byte(`{}`)).(Failure)
	require.True(t, ok)
	require.True(t, failure.Retryable)
	require.Less(t, time.Since(start), time.Second)
}

func TestTimeoutsWithDefaultsFillsZeroes(t *testing.T) {
	got := Timeouts{Socket: 3 * time.Second}.withDefaults()
	require.Equal(t, defaultConnectTimeout, got.Connect)
	require.Equal(t, 3*time.Second, got.Socket)
	require.Equal(t, defaultRequestTimeout, got.Request)
}
