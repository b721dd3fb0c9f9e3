package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestOperationErrorFormatsSession(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("capture.submit", "sess-1", base)

	if got, want := err.Error(), "capture.submit (session_id=sess-1): boom"; got != want {
		t.Fatalf("unexpected message: %q, want %q", got, want)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}
}

func TestOperationErrorWithoutSession(t *testing.T) {
	err := NewOperationError("matchclient.submit", "", errors.New("timeout"))
	if got, want := err.Error(), "matchclient.submit: timeout"; got != want {
		t.Fatalf("unexpected message: %q, want %q", got, want)
	}
}

func TestNewOperationErrorNil(t *testing.T) {
	if err := NewOperationError("noop", "sess", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestNewLoggerAcceptsUnknownLevel(t *testing.T) {
	logger, err := NewLogger("chatty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info level to be enabled")
	}
}
