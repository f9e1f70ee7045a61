package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/normalize"
	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/pkg/logging"
)

type recordingScheduler struct {
	messages []schema.InboundMessage
	err      error
}

func (s *recordingScheduler) OnMessage(_ context.Context, msg schema.InboundMessage) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func newTestHandler() (*Handler, *recordingScheduler, *events.CollectingPublisher) {
	scheduler := &recordingScheduler{}
	publisher := &events.CollectingPublisher{}
	h := NewHandler(normalize.NewNormalizer(logging.Default()), scheduler, publisher, logging.Default())
	return h, scheduler, publisher
}

func whatsappBody(companyID string) string {
	return fmt.Sprintf(`{
		"instance_id": "inst-1",
		"company_id": %q,
		"data": {
			"key": {"remoteJid": "5511987654321@s.whatsapp.net"},
			"message": {"conversation": "oi"},
			"messageTimestamp": 1756000000
		}
	}`, companyID)
}

func TestWebhookAccepted(t *testing.T) {
	h, scheduler, _ := newTestHandler()
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	companyID := uuid.NewString()
	resp, err := http.Post(server.URL+"/webhooks/whatsapp", "application/json", strings.NewReader(whatsappBody(companyID)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, scheduler.messages, 1)
	assert.Equal(t, companyID, scheduler.messages[0].CompanyID)
	assert.Equal(t, "+5511987654321", scheduler.messages[0].FromNumber)
}

func TestWebhookUnsupportedChannel(t *testing.T) {
	h, _, _ := newTestHandler()
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/webhooks/sms", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookValidationFailure(t *testing.T) {
	h, scheduler, _ := newTestHandler()
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	// missing company_id
	body := `{"instance_id": "inst-1", "data": {"key": {"remoteJid": "5511987654321@s.whatsapp.net"}, "message": {"conversation": "oi"}, "messageTimestamp": 1756000000}}`
	resp, err := http.Post(server.URL+"/webhooks/whatsapp", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, scheduler.messages)
}

func TestInstanceStatusPublished(t *testing.T) {
	h, _, publisher := newTestHandler()
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	body := fmt.Sprintf(`{"company_id": %q, "status": "disconnected"}`, uuid.NewString())
	resp, err := http.Post(server.URL+"/instances/inst-9/status", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	evts := publisher.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.ChannelInstanceStatus, evts[0].Channel)
	status := evts[0].Payload.(schema.InstanceStatus)
	assert.Equal(t, "inst-9", status.InstanceID)
	assert.Equal(t, "disconnected", status.Status)
}

func TestInstanceStatusRejectsBadCompany(t *testing.T) {
	h, _, publisher := newTestHandler()
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/instances/inst-9/status", "application/json",
		strings.NewReader(`{"company_id": "nope", "status": "up"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, publisher.Events())
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestHandler()
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
