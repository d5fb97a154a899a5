package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"
)

func TestNewWritesJSONWhenDestIsNotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()

	logger := New("pbcollect", w, false)
	logger.Info().Str("table", "Test").Msg("collected")
	w.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("reading pipe: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if line["app"] != "pbcollect" {
		t.Fatalf("app field = %v, want pbcollect", line["app"])
	}
	if line["table"] != "Test" {
		t.Fatalf("table field = %v, want Test", line["table"])
	}
	if line["message"] != "collected" {
		t.Fatalf("message field = %v, want collected", line["message"])
	}
}

func TestNewDebugFlagLowersLevel(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()

	logger := New("pbcollect", w, true)
	logger.Debug().Msg("verbose detail")
	w.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("reading pipe: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected a debug-level line to be written when debug=true")
	}
}
