package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/compiladores/jsonasm-wasm/pkg/ast"
	"github.com/compiladores/jsonasm-wasm/pkg/compiler"
	"github.com/compiladores/jsonasm-wasm/pkg/config"
	"github.com/compiladores/jsonasm-wasm/pkg/vm"
)

// session accumulates top-level items across inputs. Every accepted input
// recompiles and reruns the whole program from a fresh machine, so a
// function defined earlier stays callable and globals start from zero.
type session struct {
	cfg     *config.Config
	log     zerolog.Logger
	items   []json.RawMessage
	lastWAT string
	lastAST *ast.Program
}

func newSession(cfg *config.Config, log zerolog.Logger) *session {
	return &session{cfg: cfg, log: log}
}

// errIncomplete reports input that is a valid prefix of a JSON value.
var errIncomplete = errors.New("incomplete input")

// splitItems turns one input into top-level items. An array contributes
// its elements; any other value is a single item.
func splitItems(src string) ([]json.RawMessage, error) {
	data := bytes.TrimSpace([]byte(src))
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) && se.Offset >= int64(len(data)) {
			return nil, errIncomplete
		}
		return nil, err
	}
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return []json.RawMessage{raw}, nil
}

func (s *session) source(items []json.RawMessage) []byte {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(it)
	}
	b.WriteByte(']')
	return b.Bytes()
}

// eval adds the items in src to the session and runs the result. On any
// failure the session is left as it was.
func (s *session) eval(src string) (float64, error) {
	added, err := splitItems(src)
	if err != nil {
		return 0, err
	}
	next := append(append([]json.RawMessage(nil), s.items...), added...)
	out, err := s.run(next)
	if err != nil {
		return 0, err
	}
	s.items = next
	return out, nil
}

func (s *session) run(items []json.RawMessage) (float64, error) {
	src := s.source(items)
	prog, err := ast.Decode(src)
	if err != nil {
		return 0, err
	}
	opts := append(s.cfg.CompileOptions(), compiler.WithLogger(s.log))
	wat, img, err := compiler.Compile(src, opts...)
	if err != nil {
		return 0, err
	}
	s.lastWAT, s.lastAST = wat, prog
	mopts := append(s.cfg.MachineOptions(), vm.WithLogger(s.log))
	return vm.RunEntry(img, s.cfg.EntryName, mopts...)
}

func (s *session) reset() {
	s.items = nil
	s.lastWAT, s.lastAST = "", nil
}

// listing renders the accumulated items, one per line.
func (s *session) listing() string {
	var b strings.Builder
	for i, it := range s.items {
		fmt.Fprintf(&b, "%3d  %s\n", i, it)
	}
	return b.String()
}
