package events

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type recordingPublisher struct {
	subjects []string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitter_Subjects(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, discardLogger())

	e.DocumentProcessed(DocumentProcessed{RunID: "r1", Command: "companies", Document: "a.txt", Records: 1})
	e.RunCompleted(RunCompleted{RunID: "r1", Command: "companies", Records: 1})

	if len(pub.subjects) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.subjects))
	}
	if pub.subjects[0] != SubjectDocumentProcessed || pub.subjects[1] != SubjectRunCompleted {
		t.Errorf("unexpected subjects %v", pub.subjects)
	}
	if ev, ok := pub.payloads[0].(DocumentProcessed); !ok || ev.Document != "a.txt" {
		t.Errorf("unexpected payload %+v", pub.payloads[0])
	}
}

func TestEmitter_FailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	e := NewEmitter(pub, discardLogger())
	e.RunCompleted(RunCompleted{RunID: "r1"})
	if len(pub.subjects) != 1 {
		t.Errorf("expected publish attempt, got %d", len(pub.subjects))
	}
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var e *Emitter
	e.DocumentProcessed(DocumentProcessed{})

	NewEmitter(nil, discardLogger()).RunCompleted(RunCompleted{})
}
