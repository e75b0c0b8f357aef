package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %s", log.GetLevel())
	}
}

func TestNewWithOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{name: "defaults", opts: Options{}, wantLevel: zerolog.InfoLevel},
		{name: "debug json", opts: Options{Level: "debug", Format: FormatJSON}, wantLevel: zerolog.DebugLevel},
		{name: "upper case level", opts: Options{Level: "WARN"}, wantLevel: zerolog.WarnLevel},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Out = &bytes.Buffer{}
			log, err := NewWithOptions(opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("Expected level %s, got %s", tt.wantLevel, log.GetLevel())
			}
		})
	}
}

func TestNewWithOptions_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := NewWithOptions(Options{Format: FormatJSON, Out: buf})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	log.Info().Str("ada", "ΨΒ1Κ46ΜΤΛΗ-ΑΒΓ").Msg("stored")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["ada"] != "ΨΒ1Κ46ΜΤΛΗ-ΑΒΓ" {
		t.Errorf("Expected ada field, got %v", line["ada"])
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
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	ctx = WithFields(ctx, map[string]any{"run_id": 42, "kind": "incremental"})
	log := FromContext(ctx)
	log.Info().Msg("started")

	out := buf.String()
	if !strings.Contains(out, `"run_id":42`) {
		t.Errorf("Expected run_id field, got: %s", out)
	}
	if !strings.Contains(out, `"kind":"incremental"`) {
		t.Errorf("Expected kind field, got: %s", out)
	}
}
