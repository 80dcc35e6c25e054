// Command console is an interactive shell for JSON programs. Each entry is
// appended to the session program, which is recompiled and run, and the
// resulting value of out is printed.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/compiladores/jsonasm-wasm/pkg/config"
	"github.com/compiladores/jsonasm-wasm/pkg/logger"
	"github.com/compiladores/jsonasm-wasm/pkg/utils"
)

const (
	banner      = "jsonasm console. Enter JSON statements or functions; :help lists commands."
	promptMain  = "json> "
	promptCont  = "....> "
	historyFile = ".jsonasm_history"
)

const help = `:help          show this text
:wat           print the module text of the last run
:ast           print the decoded program of the last run
:list          list the accumulated top-level items
:load <file>   add the items of a program file
:reset         forget everything entered so far
:quit          leave`

func main() {
	cfg := config.FromEnv()
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logger.InitLogger(cfg.EffectiveLogLevel()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	s := newSession(cfg, logger.GetLogger())
	for _, path := range fs.Args() {
		if !load(s, path, os.Stdout) {
			os.Exit(1)
		}
	}
	os.Exit(repl(s))
}

func load(s *session, path string, w io.Writer) bool {
	src, err := utils.ReadSource(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	out, err := s.eval(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return false
	}
	fmt.Fprintf(w, "out = %s\n", strconv.FormatFloat(out, 'g', -1, 64))
	return true
}

func repl(s *session) int {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		code, ok := readByParseProbe(ln, promptMain, promptCont)
		if !ok {
			fmt.Println()
			return 0
		}
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		if strings.HasPrefix(code, ":") {
			if quit := command(s, code); quit {
				return 0
			}
			continue
		}

		out, err := s.eval(code)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Printf("out = %s\n", strconv.FormatFloat(out, 'g', -1, 64))
	}
}

// command runs a colon command and reports whether the shell should exit.
func command(s *session, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Println(help)
	case ":wat":
		if s.lastWAT == "" {
			fmt.Println("nothing compiled yet")
			return false
		}
		fmt.Print(s.lastWAT)
	case ":ast":
		if s.lastAST == nil {
			fmt.Println("nothing compiled yet")
			return false
		}
		fmt.Print(s.lastAST)
	case ":list":
		fmt.Print(s.listing())
	case ":load":
		if arg == "" {
			fmt.Println("usage: :load <file>")
			return false
		}
		load(s, arg, os.Stdout)
	case ":reset":
		s.reset()
	default:
		fmt.Println("unknown command. Type :help for a list.")
	}
	return false
}

// readByParseProbe keeps prompting until the buffered text is a complete
// JSON value, a colon command, or a syntax error worth reporting.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// ctrl-c drops the pending input
			return "", true
		}

		if b.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			return line, true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" {
			return src, true
		}
		if _, perr := splitItems(src); errors.Is(perr, errIncomplete) {
			continue
		}
		return src, true
	}
}
