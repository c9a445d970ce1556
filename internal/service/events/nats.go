package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

// NatsConfig configures NatsPublisher.
type NatsConfig struct {
	URL     string
	Subject string
	Name    string
}

// NatsPublisher publishes each message as JSON on a fixed subject.
type NatsPublisher struct {
	nc      *nats.Conn
	subject string
	log     *zap.Logger
}

// NewNatsPublisher connects to the configured servers.
func NewNatsPublisher(cfg NatsConfig, log *zap.Logger) (*NatsPublisher, error) {
	log = log.Named("nats")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return &NatsPublisher{nc: nc, subject: cfg.Subject, log: log}, nil
}

func (p *NatsPublisher) Publish(_ context.Context, msg chat.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	out := nats.NewMsg(p.subject)
	out.Data = data
	out.Header.Set("Relay-Type", string(msg.Type))
	if msg.FromUserID != "" {
		out.Header.Set("Relay-From", msg.FromUserID)
	}
	if err := p.nc.PublishMsg(out); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending publishes before closing.
func (p *NatsPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
