package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/compiladores/jsonasm-wasm/pkg/config"
	"github.com/compiladores/jsonasm-wasm/pkg/diag"
)

func TestSplitItems(t *testing.T) {
	items, err := splitItems(`[{"declare":"a","value":1}, "break"]`)
	if err != nil || len(items) != 2 {
		t.Fatalf("array: got %d items, err %v", len(items), err)
	}
	items, err = splitItems(`{"set":"out","value":3}`)
	if err != nil || len(items) != 1 {
		t.Fatalf("object: got %d items, err %v", len(items), err)
	}
	if _, err := splitItems(`[{"set":"out",`); !errors.Is(err, errIncomplete) {
		t.Errorf("truncated input: expected errIncomplete, got %v", err)
	}
	if _, err := splitItems(`[1,}`); err == nil || errors.Is(err, errIncomplete) {
		t.Errorf("broken input: expected a syntax error, got %v", err)
	}
}

func TestSessionAccumulates(t *testing.T) {
	s := newSession(config.Default(), zerolog.Nop())

	if _, err := s.eval(`{"function":"twice","args":["x"],"block":[{"return":{"binop":"*","argl":"x","argr":2}}]}`); err != nil {
		t.Fatalf("define: %v", err)
	}
	out, err := s.eval(`{"set":"out","value":{"call":"twice","args":[21]}}`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != 42 {
		t.Errorf("out = %v, want 42", out)
	}
	if !strings.Contains(s.lastWAT, "(func $twice") {
		t.Errorf("last module text lacks the function:\n%s", s.lastWAT)
	}
	if got := strings.Count(s.listing(), "\n"); got != 2 {
		t.Errorf("listing has %d lines, want 2", got)
	}
}

func TestSessionRollsBackOnError(t *testing.T) {
	s := newSession(config.Default(), zerolog.Nop())
	if _, err := s.eval(`{"declare":"a","value":5}`); err != nil {
		t.Fatal(err)
	}
	_, err := s.eval(`{"set":"out","value":"missing"}`)
	if diag.KindOf(err) != diag.UnboundVariable {
		t.Fatalf("expected unbound-variable, got %v", err)
	}
	if len(s.items) != 1 {
		t.Errorf("failed input was kept: %d items", len(s.items))
	}
	out, err := s.eval(`{"set":"out","value":"a"}`)
	if err != nil || out != 5 {
		t.Errorf("out = %v, err %v; want 5", out, err)
	}

	s.reset()
	if len(s.items) != 0 || s.lastWAT != "" {
		t.Error("reset left state behind")
	}
}
