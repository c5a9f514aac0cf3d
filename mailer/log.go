package mailer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogMailer writes emails to the log instead of delivering them. It also keeps
// the sent messages, which makes it the mailer of choice in development and tests.
type LogMailer struct {
	log *zap.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.L()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.log.Info("email (not delivered)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text))
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of every message passed to Send.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
