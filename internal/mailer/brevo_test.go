package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMailer(url string) *BrevoMailer {
	return NewBrevoMailer(BrevoConfig{
		APIKey:          "test-key",
		Endpoint:        url,
		SenderEmail:     "noreply@chatty.test",
		SenderName:      "Chatty",
		RetryMaxElapsed: 2 * time.Second,
	})
}

func TestBrevoMailerSendsVerificationCode(t *testing.T) {
	var got brevoEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer server.Close()

	err := newTestMailer(server.URL).SendVerificationCode(context.Background(), "alice@example.com", "123456")
	require.NoError(t, err)

	assert.Equal(t, subjectVerify, got.Subject)
	assert.Equal(t, "noreply@chatty.test", got.Sender.Email)
	require.Len(t, got.To, 1)
	assert.Equal(t, "alice@example.com", got.To[0].Email)
	assert.Contains(t, got.HTMLContent, "123456")
}

func TestBrevoMailerRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	err := newTestMailer(server.URL).SendPasswordReset(context.Background(), "a@example.com", "http://app/reset-password/tok")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBrevoMailerClientErrorIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"unauthorized"}`))
	}))
	defer server.Close()

	err := newTestMailer(server.URL).SendPasswordResetSuccess(context.Background(), "a@example.com")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResetTemplateEscapesLink(t *testing.T) {
	html, err := render(resetTemplate, struct{ Link string }{`http://app/reset-password/a"b`})
	require.NoError(t, err)
	assert.NotContains(t, html, `a"b`)
}

func TestLogMailer(t *testing.T) {
	var m Mailer = LogMailer{}
	assert.NoError(t, m.SendVerificationCode(context.Background(), "a@example.com", "123456"))
	assert.NoError(t, m.SendPasswordReset(context.Background(), "a@example.com", "http://x"))
	assert.NoError(t, m.SendPasswordResetSuccess(context.Background(), "a@example.com"))
}
