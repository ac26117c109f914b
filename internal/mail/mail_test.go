package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besafe/digital-sister/internal/config"
	"github.com/besafe/digital-sister/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *resend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := resend.NewClient("re_test")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}

func TestResendTransportSend(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	})

	err := NewResendTransport(client, "alerts@besafe.test").Send(context.Background(), "mom@example.com", "subject", "body")
	require.NoError(t, err)

	assert.Equal(t, `"My Digital Sister" <alerts@besafe.test>`, got["from"])
	assert.Equal(t, []any{"mom@example.com"}, got["to"])
	assert.Equal(t, "subject", got["subject"])
	assert.Equal(t, "body", got["text"])
}

func TestResendTransportProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid to field"}`))
	})

	err := NewResendTransport(client, "alerts@besafe.test").Send(context.Background(), "not-an-address", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send email")
}

func TestNewMailer(t *testing.T) {
	m := NewMailer(config.Config{})
	_, ok := m.(Unconfigured)
	require.True(t, ok)
	err := m.Send(context.Background(), "a@b.c", "s", "b")
	assert.True(t, errors.Is(err, domain.ErrMailNotConfigured))

	m = NewMailer(config.Config{ResendAPIKey: "re_x", EmailFrom: "alerts@besafe.test"})
	_, ok = m.(*ResendTransport)
	assert.True(t, ok)
}
