package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewMapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/review", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://photos.example.com/abc.jpg", body["photo_url"])
		assert.Equal(t, "show the statue", body["instructions"])

		json.NewEncoder(w).Encode(Result{Verdict: VerdictAccept, Explanation: "statue is visible"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second)
	result, err := client.Review(context.Background(), "https://photos.example.com/abc.jpg", "show the statue")
	require.NoError(t, err)
	assert.Equal(t, VerdictAccept, result.Verdict)
	assert.Equal(t, "statue is visible", result.Explanation)
}

func TestReviewNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second)
	_, err := client.Review(context.Background(), "ref", "prompt")
	assert.Error(t, err)
}

func TestReviewTimesOut(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 50*time.Millisecond)
	_, err := client.Review(context.Background(), "ref", "prompt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	<-started
}
