package logging

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("default logger should be silent")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	defer SetLogger(nil)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogDatagram(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogDatagram("received", "192.168.1.20:7000", []byte{0x00, 'A', 0xFF})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["hex"] != "0041ff" {
		t.Errorf("hex = %v, want 0041ff", fields["hex"])
	}
	if fields["ascii"] != ".A." {
		t.Errorf("ascii = %v, want .A.", fields["ascii"])
	}
}

func TestHexDump_Truncates(t *testing.T) {
	got := hexDump(make([]byte, maxDumpBytes+10))
	if !strings.HasSuffix(got, "...") {
		t.Error("hexDump() should mark truncated output")
	}
	if len(got) != maxDumpBytes*2+3 {
		t.Errorf("hexDump() length = %d, want %d", len(got), maxDumpBytes*2+3)
	}
}

func TestLogHTTPRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogHTTPRequest("127.0.0.1:5000", "GET", "/api/gateways", 200, 3*time.Millisecond)
	LogConnection("127.0.0.1:5000", "websocket_opened")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status_code"] != int64(200) {
		t.Errorf("status_code = %v, want 200", fields["status_code"])
	}
	if entries[1].ContextMap()["event"] != "websocket_opened" {
		t.Errorf("event = %v, want websocket_opened", entries[1].ContextMap()["event"])
	}
}
