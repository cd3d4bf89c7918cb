package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/piecework/internal/config"
)

func TestSendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v20.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.WhatsAppConfig{AccessToken: "secret", PhoneNumberID: "12345", BaseURL: srv.URL + "/", APIVersion: "v20.0"})

	id, err := client.SendText(context.Background(), "224600000000", "audit ok")
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", id)
	assert.Equal(t, "224600000000", got["to"])
	assert.Equal(t, map[string]any{"body": "audit ok", "preview_url": false}, got["text"])
}

func TestSendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
	}))
	defer srv.Close()

	client := NewClient(config.WhatsAppConfig{AccessToken: "secret", PhoneNumberID: "12345", BaseURL: srv.URL, APIVersion: "v20.0"})

	err := NewNotifier(client, "224600000000").Notify(context.Background(), "audit ok")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 100, apiErr.Code)
	assert.Equal(t, "Invalid parameter", apiErr.Message)
}

func TestSendTextRequiresRecipient(t *testing.T) {
	client := NewClient(config.WhatsAppConfig{BaseURL: "http://127.0.0.1:1", APIVersion: "v20.0"})
	_, err := client.SendText(context.Background(), "", "x")
	assert.Error(t, err)
}
