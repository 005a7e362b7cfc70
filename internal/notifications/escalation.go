package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/projectdash/dashboard-backend/pkg/logger"
)

// Escalator reports failures out of band. It never sends through a Sender.
type Escalator interface {
	Escalate(ctx context.Context, a Alert) error
}

type alertPublisher interface {
	PublishAlert(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// PubSubEscalator publishes alerts to the alerts topic.
type PubSubEscalator struct {
	publisher alertPublisher
	logg      *logger.Logger
}

func NewPubSubEscalator(publisher alertPublisher, logg *logger.Logger) (*PubSubEscalator, error) {
	if publisher == nil {
		return nil, fmt.Errorf("alert publisher required")
	}
	return &PubSubEscalator{publisher: publisher, logg: logg}, nil
}

func (e *PubSubEscalator) Escalate(ctx context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	id, err := e.publisher.PublishAlert(ctx, data, map[string]string{
		"source":   a.Source,
		"kind":     a.Kind,
		"reason":   a.Reason,
		"provider": a.Provider,
	})
	if err != nil {
		return err
	}
	if e.logg != nil {
		e.logg.Info(e.logg.WithField(ctx, "message_id", id), "alert.published")
	}
	return nil
}

// LogEscalator records alerts as error logs.
type LogEscalator struct {
	logg *logger.Logger
}

func NewLogEscalator(logg *logger.Logger) *LogEscalator {
	return &LogEscalator{logg: logg}
}

func (e *LogEscalator) Escalate(ctx context.Context, a Alert) error {
	if e.logg == nil {
		return nil
	}
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"alert_source": a.Source,
		"alert_kind":   a.Kind,
		"reason":       a.Reason,
		"provider":     a.Provider,
		"event_id":     a.EventID,
		"event_kind":   a.EventKind,
	})
	e.logg.Error(logCtx, "alert.escalated", fmt.Errorf("%s", a.Message))
	return nil
}
