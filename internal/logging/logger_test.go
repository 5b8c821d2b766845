package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, "": Info, "INFO": Info, "warning": Warn, "error": Error}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != JSON {
		t.Fatalf("expected JSON, got %v (%v)", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != Text {
		t.Fatalf("expected Text, got %v (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Debug, JSON, &buf).With(Field{Key: "subsystem", Value: "scheduler"})
	log.Info("cycle dispatched", Field{Key: "cycle", Value: 3}, Field{Key: "err", Value: errors.New("late")})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "cycle dispatched" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["subsystem"] != "scheduler" {
		t.Fatalf("missing subsystem field: %v", entry)
	}
	if entry["cycle"] != float64(3) {
		t.Fatalf("unexpected cycle: %v", entry["cycle"])
	}
	if entry["err"] != "late" {
		t.Fatalf("unexpected err: %v", entry["err"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Warn, Text, &buf)
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("filtered entries leaked: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("expected warn entry, got %q", out)
	}
}

func TestDefaultAndSetDefault(t *testing.T) {
	if Default() == nil {
		t.Fatalf("default logger must never be nil")
	}
	var buf bytes.Buffer
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	SetDefault(New(Info, Text, &buf))
	SetDefault(nil)
	Default().Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("SetDefault did not take effect: %q", buf.String())
	}
}
