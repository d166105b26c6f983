package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/Yamata-WABA/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCloudSender(t *testing.T, handler http.HandlerFunc) *CloudAPISender {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.WhatsAppConfig{
		ProviderDomain: strings.TrimPrefix(srv.URL, "https://"),
		APIVersion:     "v21.0",
		PhoneNumberID:  "1055",
		AccessToken:    "token-abc",
		Timeout:        5 * time.Second,
	}
	return NewCloudAPISender(cfg, srv.Client())
}

func TestCloudAPISender_SendTemplate(t *testing.T) {
	var captured cloudTemplateRequest
	sender := newTestCloudSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/1055/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC"}]}`))
	})

	res, err := sender.SendTemplate(context.Background(), TemplateMessage{
		To:           "+919876543210",
		TemplateName: "order_update",
		Language:     "en_US",
		HeaderParams: []string{"Hi"},
		BodyParams:   []string{"Asha", "42"},
		ButtonParams: map[int]string{1: "track/42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", res.ProviderMessageID)

	assert.Equal(t, "919876543210", captured.To)
	assert.Equal(t, "template", captured.Type)
	require.Len(t, captured.Template.Components, 3)
	assert.Equal(t, "header", captured.Template.Components[0].Type)
	assert.Equal(t, "body", captured.Template.Components[1].Type)
	assert.Len(t, captured.Template.Components[1].Parameters, 2)
	assert.Equal(t, "button", captured.Template.Components[2].Type)
	assert.Equal(t, "1", captured.Template.Components[2].Index)
	assert.Equal(t, "track/42", captured.Template.Components[2].Parameters[0].Text)
}

func TestCloudAPISender_ErrorClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"throttled", http.StatusTooManyRequests, ErrSendNotAccepted},
		{"server error", http.StatusBadGateway, ErrSendNotAccepted},
		{"bad request", http.StatusBadRequest, ErrSendRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newTestCloudSender(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})
			_, err := sender.SendTemplate(context.Background(), TemplateMessage{To: "+1", TemplateName: "t", Language: "en"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCloudAPISender_MissingMessageID(t *testing.T) {
	sender := newTestCloudSender(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	})
	_, err := sender.SendTemplate(context.Background(), TemplateMessage{To: "+1", TemplateName: "t", Language: "en"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSendRejected)
	assert.NotErrorIs(t, err, ErrSendNotAccepted)
}

func TestMockWhatsAppSender(t *testing.T) {
	sender := NewWhatsAppSender(config.WhatsAppConfig{ProviderDomain: "mock"})
	mock, ok := sender.(*MockWhatsAppSender)
	require.True(t, ok)

	res, err := mock.SendTemplate(context.Background(), TemplateMessage{To: "+15550001", TemplateName: "t"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ProviderMessageID, "wamid.mock."))
	assert.Contains(t, string(res.RawResponse), res.ProviderMessageID)
	assert.Len(t, mock.SentMessages(), 1)
}
