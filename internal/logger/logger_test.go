package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		level   zerolog.Level
		wantErr bool
	}{
		{"defaults", Options{}, zerolog.InfoLevel, false},
		{"debug json", Options{Level: "DEBUG", Format: "json"}, zerolog.DebugLevel, false},
		{"bad level", Options{Level: "loud"}, zerolog.NoLevel, true},
		{"bad format", Options{Format: "xml"}, zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && log.GetLevel() != tt.level {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.level)
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New(Options{Format: "json", Out: buf, Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("dropped")
	log.Warn().Str("window", "revenue/Airbnb/2024").Msg("purged")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"window":"revenue/Airbnb/2024"`) {
		t.Errorf("expected JSON field in output, got: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")
	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() != zerolog.WarnLevel {
		t.Errorf("default level = %v, want warn", log.GetLevel())
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"source": "Airbnb",
		"year":   2024,
	})
	log.Info().Msg("replace window")

	output := buf.String()
	if !strings.Contains(output, `"source":"Airbnb"`) || !strings.Contains(output, `"year":2024`) {
		t.Errorf("Expected output to contain fields, got: %s", output)
	}
}
