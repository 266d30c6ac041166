package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAuditForwarder_WithoutSinkOnlyLogs(t *testing.T) {
	f := services.NewAuditForwarder(nil, discardLogger())

	f.RecordEvent(context.Background(), &models.SecurityEvent{ID: uuid.New(), Type: models.EventFailedLogin})
	f.RecordAlert(context.Background(), &models.Alert{ID: uuid.New(), Type: models.EventBruteForceDetected})

	assert.False(t, f.Configured())
	assert.Zero(t, f.Failures())
}

func TestAuditForwarder_CountsSinkFailures(t *testing.T) {
	sink := &MockAuditSink{
		InsertSecurityAlertFunc: func(ctx context.Context, alert *models.Alert) error {
			return errors.New("connection reset")
		},
	}
	f := services.NewAuditForwarder(sink, discardLogger())

	event := &models.SecurityEvent{ID: uuid.New(), Type: models.EventFailedLogin, Severity: models.SeverityWarning}
	f.RecordEvent(context.Background(), event)
	f.RecordAlert(context.Background(), &models.Alert{ID: uuid.New(), Type: models.EventBruteForceDetected})
	f.RecordAlert(context.Background(), &models.Alert{ID: uuid.New(), Type: models.EventInjectionAttempt})

	assert.True(t, f.Configured())
	assert.Equal(t, int64(2), f.Failures())
	if assert.Len(t, sink.Events(), 1) {
		assert.Equal(t, event.ID, sink.Events()[0].ID)
	}

	f.ResetFailures()
	assert.Zero(t, f.Failures())
}
