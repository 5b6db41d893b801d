package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log := New("info", "json", path)

	log.Component("purchase").Info().Str("user_id", "u-1").Msg("Episode purchased")
	log.Debug().Msg("hidden")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"component":"purchase"`, `"service":"novelmaze"`, `"user_id":"u-1"`, `"message":"Episode purchased"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug event written at info level")
	}
}

func TestIsDebug(t *testing.T) {
	if Nop().IsDebug() {
		t.Error("Nop logger should not report debug")
	}

	dir := t.TempDir()
	if !New("debug", "json", filepath.Join(dir, "debug.log")).IsDebug() {
		t.Error("expected debug logger to report debug")
	}
	if New("info", "json", filepath.Join(dir, "info.log")).IsDebug() {
		t.Error("expected info logger not to report debug")
	}
}

func TestGormLogger_LogMode(t *testing.T) {
	g := NewGormLogger(Nop(), 0)
	if g.level != gormlogger.Warn {
		t.Errorf("expected warn level for non-debug logger, got %v", g.level)
	}

	silent := g.LogMode(gormlogger.Silent).(*GormLogger)
	if silent.level != gormlogger.Silent {
		t.Errorf("expected silent clone, got %v", silent.level)
	}
	if g.level != gormlogger.Warn {
		t.Error("LogMode must not mutate the original logger")
	}
}
