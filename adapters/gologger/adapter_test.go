package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestResolvePrefersProviderThenLogger(t *testing.T) {
	direct := &capturingLogger{id: "logger"}
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}

	_, resolved := Resolve("poller", provider, direct)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved := Resolve("poller", nil, direct)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve("poller", nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestResolveForJobBridgesToGoJob(t *testing.T) {
	captured := &capturingLogger{id: "provider"}
	_, _, jobProvider, jobLogger := ResolveForJob("worker", &capturingProvider{logger: captured}, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job bridges")
	}

	jobProvider.GetLogger("worker").Info("update enqueued", "update_id", 7)
	if captured.lastInfo.msg != "update enqueued" {
		t.Fatalf("expected bridged message, got %q", captured.lastInfo.msg)
	}
	if len(captured.lastInfo.args) != 2 || captured.lastInfo.args[0] != "update_id" {
		t.Fatalf("expected bridged args, got %#v", captured.lastInfo.args)
	}
}

func TestZapLoggerWritesStructuredEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := WrapZap(zap.New(core))

	logger.Trace("trace entry")
	logger.Info("poller started", "bot_id", "bot-a", "offset", int64(4))
	child := logger.WithFields(map[string]any{"run_id": "r1"})
	child.Warn("fetch failed", "attempt", 2)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected trace to log at debug, got %s", entries[0].Level)
	}
	fields := entries[1].ContextMap()
	if fields["bot_id"] != "bot-a" || fields["offset"] != int64(4) {
		t.Fatalf("unexpected info fields: %#v", fields)
	}
	warn := entries[2].ContextMap()
	if warn["run_id"] != "r1" || warn["attempt"] != int64(2) {
		t.Fatalf("expected child fields on warn entry, got %#v", warn)
	}
}

func TestZapProviderNamesLoggers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	provider := NewZapProvider(WrapZap(zap.New(core)))

	provider.GetLogger("poller").Info("hello")
	provider.GetLogger("").Debug("filtered")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected debug entry to be filtered, got %d entries", len(entries))
	}
	if entries[0].LoggerName != "poller" {
		t.Fatalf("expected logger name poller, got %q", entries[0].LoggerName)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"trace":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("expected %s for %q, got %s", want, input, got)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
