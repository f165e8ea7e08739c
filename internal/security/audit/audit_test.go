package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturingService(enabled bool) (*AuditService, *[]AuditEvent) {
	var events []AuditEvent
	svc := NewAuditService(enabled)
	svc.sink = func(_ context.Context, e AuditEvent) {
		events = append(events, e)
	}
	return svc, &events
}

func TestAuditService_KeyEvents(t *testing.T) {
	svc, events := newCapturingService(true)

	ctx := WithMetadata(context.Background(), &Metadata{IPAddress: "10.0.0.1", UserAgent: "curl/8"})
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	svc.LogKeySaved(ctx, "AbCd1234", &expires)
	svc.LogKeySaved(ctx, "never001", nil)
	svc.LogKeyRetrieved(ctx, "AbCd1234")
	svc.LogKeyMissed(ctx, "AbCd1234", "not_found")

	require.Len(t, *events, 4)
	saved := (*events)[0]
	assert.Equal(t, "key_saved", saved.EventType)
	assert.Equal(t, "2030-01-01T00:00:00Z", saved.Details["expires"])
	assert.Equal(t, "10.0.0.1", saved.IPAddress)
	assert.Equal(t, "curl/8", saved.UserAgent)
	assert.Equal(t, "never", (*events)[1].Details["expires"])
	assert.Equal(t, "success", (*events)[2].Result)
	assert.Equal(t, "failure", (*events)[3].Result)
}

func TestAuditService_Disabled(t *testing.T) {
	svc, events := newCapturingService(false)

	svc.LogKeySaved(context.Background(), "x", nil)
	svc.LogRateLimitExceeded(context.Background(), "fp", "/api/keys/x")
	svc.LogSecurityEvent(context.Background(), "rotate", "d", "info", nil)

	assert.Empty(t, *events)
	assert.False(t, svc.IsEnabled())

	var nilSvc *AuditService
	assert.NotPanics(t, func() { nilSvc.LogKeyRetrieved(context.Background(), "x") })
}
