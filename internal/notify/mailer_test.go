package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResendMailerPostsEmail(t *testing.T) {
	var got resendRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	mailer := &ResendMailer{
		apiKey:  "re_test",
		from:    "MotivWealth <onboarding@resend.dev>",
		baseURL: server.URL,
		client:  &http.Client{Timeout: time.Second},
	}

	err := mailer.Send(context.Background(), "u1@example.com", "subject", "<p>body</p>")
	require.NoError(t, err)
	assert.Equal(t, "Bearer re_test", auth)
	assert.Equal(t, []string{"u1@example.com"}, got.To)
	assert.Equal(t, "subject", got.Subject)
	assert.Equal(t, "<p>body</p>", got.HTML)
}

func TestResendMailerRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	mailer := &ResendMailer{
		apiKey:  "re_test",
		from:    "MotivWealth <onboarding@resend.dev>",
		baseURL: server.URL,
		client:  &http.Client{Timeout: time.Second},
	}

	err := mailer.Send(context.Background(), "u1@example.com", "subject", "<p>body</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
