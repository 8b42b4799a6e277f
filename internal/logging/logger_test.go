package logging

import (
	"testing"
)

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typed *fileLogger
	var logger Logger = typed
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world") // should not panic
}

func TestMultiFlattensAndSkipsNil(t *testing.T) {
	rec := &recordingLogger{}
	inner := Multi(rec, nil)
	outer := Multi(inner, Nop())

	outer.Info("msg %d", 1)
	outer.Warn("msg %d", 2)

	if len(rec.lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(rec.lines))
	}
}

func TestMultiEmptyReturnsNop(t *testing.T) {
	logger := Multi(nil, nil)
	if IsNil(logger) {
		t.Fatalf("expected non-nil logger")
	}
	logger.Error("should not panic")
}

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, format) }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, format) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, format) }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, format) }
