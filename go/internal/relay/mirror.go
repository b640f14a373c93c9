package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/timerboard/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Mirror receives every mutation the relay accepts
type Mirror interface {
	Publish(ctx context.Context, event events.Envelope) error
	Close() error
}

// NoOpMirror is used when no message bus is configured
type NoOpMirror struct{}

func (NoOpMirror) Publish(ctx context.Context, event events.Envelope) error { return nil }
func (NoOpMirror) Close() error                                             { return nil }

// MirrorConfig holds configuration for the JetStream mirror. An empty URL
// disables mirroring.
type MirrorConfig struct {
	URL             string        `yaml:"url"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	PublishTicks    bool          `yaml:"publish_ticks"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxAge          time.Duration `yaml:"max_age"`
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
}

func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		StreamName:      "TIMERBOARD_EVENTS",
		SubjectPrefix:   "timerboard.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Subject returns the subject an event type is published on
func (c MirrorConfig) Subject(eventType events.Type) string {
	return fmt.Sprintf("%s.%s", c.SubjectPrefix, eventType)
}

// NewMirror returns a JetStream mirror, or NoOpMirror when cfg.URL is empty.
func NewMirror(cfg MirrorConfig) (Mirror, error) {
	if cfg.URL == "" {
		return NoOpMirror{}, nil
	}
	return NewJetStreamMirror(cfg)
}

// JetStreamMirror publishes accepted mutations to a JetStream stream
type JetStreamMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config MirrorConfig
}

func NewJetStreamMirror(cfg MirrorConfig) (*JetStreamMirror, error) {
	opts := []nats.Option{
		nats.Name("timerboard-relay"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	m := &JetStreamMirror{nc: nc, js: js, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return m, nil
}

func (m *JetStreamMirror) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        m.config.StreamName,
		Description: "Timer board mutations accepted by the relay",
		Subjects:    []string{fmt.Sprintf("%s.>", m.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.config.MaxAge,
		Storage:     jetstream.MemoryStorage,
		Replicas:    m.config.Replicas,
		Duplicates:  m.config.DuplicateWindow,
	}

	if _, err := m.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().
		Str("stream", m.config.StreamName).
		Msg("JetStream stream ready")
	return nil
}

// Publish sends the event without waiting for the server acknowledgement, so
// a slow bus never stalls the connection that caused the mutation.
func (m *JetStreamMirror) Publish(ctx context.Context, event events.Envelope) error {
	if event.Type == events.TypeTimerUpdate && !m.config.PublishTicks {
		return nil
	}

	eventID := uuid.New().String()
	subject := m.config.Subject(event.Type)

	future, err := m.js.PublishMsgAsync(&nats.Msg{
		Subject: subject,
		Data:    event.Data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Event-ID":   []string{eventID},
		},
	},
		jetstream.WithMsgID(eventID),
		jetstream.WithExpectStream(m.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	go func() {
		select {
		case ack := <-future.Ok():
			log.Debug().
				Str("subject", subject).
				Str("event_id", eventID).
				Uint64("sequence", ack.Sequence).
				Msg("mirrored to JetStream")
		case err := <-future.Err():
			log.Error().Err(err).Str("subject", subject).Msg("JetStream publish failed")
		}
	}()

	return nil
}

// Connected reports whether the NATS connection is up
func (m *JetStreamMirror) Connected() bool {
	return m.nc != nil && m.nc.IsConnected()
}

func (m *JetStreamMirror) Close() error {
	if m.nc != nil {
		if err := m.nc.Drain(); err != nil {
			m.nc.Close()
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}
