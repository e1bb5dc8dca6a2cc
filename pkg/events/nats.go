package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/pkg/config"
)

// Publisher delivers lifecycle events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return nats.Connect(cfg.URL,
		nats.Name("sortify-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// Subject builds the subject an event type is published on.
func Subject(prefix string, eventType models.EventType) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return string(eventType)
	}
	return prefix + "." + string(eventType)
}

// NATSPublisher publishes JSON encoded events on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, event models.LifecycleEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := p.conn.Publish(Subject(p.prefix, event.Type), data); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// Subscribe decodes events of one type and hands them to fn.
func Subscribe(conn *nats.Conn, prefix string, eventType models.EventType, logger *zap.Logger, fn func(models.LifecycleEvent)) (*nats.Subscription, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return conn.Subscribe(Subject(prefix, eventType), func(msg *nats.Msg) {
		var event models.LifecycleEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("discarding undecodable event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		fn(event)
	})
}

// NopPublisher drops every event; used when NATS is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, models.LifecycleEvent) error { return nil }
