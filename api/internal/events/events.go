package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/history"
)

const DefaultSubject = "ecovision.analysis.completed"

// Publisher сообщает о каждой новой записи истории.
type Publisher interface {
	PublishAnalysis(ctx context.Context, scope string, e history.Entry) error
}

// AnalysisCompleted: тело события. Изображение не отправляется.
type AnalysisCompleted struct {
	Scope      string          `json:"scope"`
	EntryID    string          `json:"entry_id"`
	Result     analysis.Result `json:"result"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewAnalysisCompleted(scope string, e history.Entry) AnalysisCompleted {
	return AnalysisCompleted{
		Scope:      scope,
		EntryID:    string(e.ID),
		Result:     e.Result,
		OccurredAt: e.Date,
	}
}

type Nop struct{}

func (Nop) PublishAnalysis(context.Context, string, history.Entry) error { return nil }

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	Logger         *slog.Logger
}

func NewNATS(url, subject string, o Options) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ecovision"),
		nats.Timeout(o.ConnectTimeout),
		nats.ReconnectWait(o.ReconnectWait),
		nats.MaxReconnects(o.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) PublishAnalysis(ctx context.Context, scope string, e history.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(NewAnalysisCompleted(scope, e))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
