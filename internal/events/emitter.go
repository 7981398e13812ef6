package events

import "log/slog"

// Publisher is satisfied by *Client.
type Publisher interface {
	Publish(subject string, data any) error
}

// Emitter publishes typed events and downgrades failures to warnings. A nil
// Publisher turns every call into a no-op.
type Emitter struct {
	pub    Publisher
	logger *slog.Logger
}

func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{pub: pub, logger: logger}
}

func (e *Emitter) DocumentProcessed(ev DocumentProcessed) {
	e.publish(SubjectDocumentProcessed, ev)
}

func (e *Emitter) RunCompleted(ev RunCompleted) {
	e.publish(SubjectRunCompleted, ev)
}

func (e *Emitter) publish(subject string, data any) {
	if e == nil || e.pub == nil {
		return
	}
	if err := e.pub.Publish(subject, data); err != nil {
		e.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}
