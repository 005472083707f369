package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"voxbind/internal/config"
	"voxbind/internal/ports"
)

const (
	MessageUtterance = "utterance"
	MessageStatus    = "status"
)

// Message is the JSON payload published for each relayed event.
type Message struct {
	Type   string    `json:"type"`
	Text   string    `json:"text,omitempty"`
	Status string    `json:"status,omitempty"`
	At     time.Time `json:"at"`
}

// Relay publishes new utterances and session status changes to NATS.
type Relay struct {
	conn    *nats.Conn
	subject string
	log     logrus.FieldLogger
	now     func() time.Time
}

func Connect(cfg config.RelayConfig, logger logrus.FieldLogger) (*Relay, error) {
	if cfg.NATSURL == "" {
		return nil, errors.New("no NATS url configured")
	}
	if cfg.Subject == "" {
		return nil, errors.New("no relay subject configured")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("voxbind"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log := logger.WithFields(logrus.Fields{"component": "relay", "subject": cfg.Subject})
	log.WithField("url", cfg.NATSURL).Info("connected to NATS")
	return &Relay{conn: conn, subject: cfg.Subject, log: log, now: time.Now}, nil
}

// Run forwards events from recognizer until ctx is done or both streams
// close.
func (r *Relay) Run(ctx context.Context, recognizer ports.SpeechRecognizer) {
	utterances := recognizer.NewUtterances(ctx)
	statuses := recognizer.SessionStatus(ctx)

	for utterances != nil || statuses != nil {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-utterances:
			if !ok {
				utterances = nil
				continue
			}
			r.publish(Message{Type: MessageUtterance, Text: text, At: r.now()})
		case status, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			r.publish(Message{Type: MessageStatus, Status: status.String(), At: r.now()})
		}
	}
}

func (r *Relay) publish(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.WithError(err).Warn("failed to encode relay message")
		return
	}
	if err := r.conn.Publish(r.subject, payload); err != nil {
		r.log.WithError(err).WithField("type", msg.Type).Warn("failed to publish relay message")
	}
}

// Healthy reports whether the NATS connection is up.
func (r *Relay) Healthy() bool {
	return r != nil && r.conn != nil && r.conn.Status() == nats.CONNECTED
}

func (r *Relay) Close() {
	if r == nil || r.conn == nil {
		return
	}
	if err := r.conn.Drain(); err != nil {
		r.log.WithError(err).Debug("drain failed")
	}
	r.conn.Close()
}

// Decode parses a relayed payload.
func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode relay message: %w", err)
	}
	return msg, nil
}

