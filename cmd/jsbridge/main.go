// Command jsbridge runs scripts in a bridge context, or starts a REPL when
// stdin is a terminal and no script is given.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cryguy/jsbridge"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	module := flag.Bool("module", false, "evaluate inputs as ES modules")
	expr := flag.String("e", "", "evaluate source and exit")
	flag.Parse()

	if err := run(*configPath, *module, *expr, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "jsbridge:", err)
		os.Exit(1)
	}
}

func run(configPath string, module bool, expr string, files []string) error {
	cfg := jsbridge.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = jsbridge.LoadConfig(configPath); err != nil {
			return err
		}
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	jsbridge.SetLogger(log)

	engine := jsbridge.InitializeGlobals(jsbridge.WithConfig(cfg))
	defer jsbridge.FinalizeGlobals()

	s, err := newShell(engine, os.Stdout)
	if err != nil {
		return err
	}

	switch {
	case expr != "":
		return s.runSource(expr, "<expr>", module)
	case len(files) > 0:
		for _, f := range files {
			if err := s.runFile(f, module); err != nil {
				return err
			}
		}
		return nil
	case term.IsTerminal(int(os.Stdin.Fd())):
		return s.repl(os.Stdin)
	}
	src, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return s.runSource(string(src), "<stdin>", module)
}

func newLogger(cfg jsbridge.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// shell holds one VM instance and context for the lifetime of the command.
type shell struct {
	engine *jsbridge.Engine
	vm     *jsbridge.VMInstance
	ctx    *jsbridge.Context
	out    io.Writer
}

var errScript = errors.New("script failed")

func newShell(engine *jsbridge.Engine, out io.Writer) (*shell, error) {
	vm := jsbridge.NewVMInstance(engine)
	ctx, err := jsbridge.NewContext(vm)
	if err != nil {
		return nil, err
	}
	s := &shell{engine: engine, vm: vm, ctx: ctx, out: out}
	if !jsbridge.InstallConsole(ctx) {
		return nil, fmt.Errorf("installing console: %s", s.exception())
	}
	if !jsbridge.Register(ctx, "host", "print", s.print) {
		return nil, fmt.Errorf("registering host.print: %s", s.exception())
	}
	return s, nil
}

// print writes its arguments separated by spaces, like console.log but to
// stdout and without capture.
func (s *shell) print(_ *jsbridge.Value, args []*jsbridge.Value) (*jsbridge.Value, bool) {
	parts := make([]string, len(args))
	for i, a := range args {
		str, ok := a.ToString(s.ctx)
		if !ok {
			str = a.String()
		}
		parts[i] = str
	}
	fmt.Fprintln(s.out, strings.Join(parts, " "))
	return nil, false
}

func (s *shell) runFile(path string, module bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return s.runSource(string(src), path, module)
}

func (s *shell) runSource(src, name string, module bool) error {
	v, ok := jsbridge.Evaluate(s.ctx, &src, name, module)
	if !ok {
		fmt.Fprintln(s.out, "Uncaught", s.exception())
		s.ctx.ClearException()
		return errScript
	}
	if !v.IsUndefined() {
		fmt.Fprintln(s.out, s.format(v))
	}
	return nil
}

func (s *shell) format(v *jsbridge.Value) string {
	if v.IsString() {
		return fmt.Sprintf("%q", v.AsString())
	}
	if v.IsObject() && !v.IsCallable() {
		if js, ok := s.ctx.JSONStringify(v); ok && js.IsString() {
			return js.AsString()
		}
	}
	str, ok := v.ToString(s.ctx)
	if !ok {
		s.ctx.ClearException()
		return v.String()
	}
	return str
}

func (s *shell) exception() string {
	exc, ok := s.ctx.LastException()
	if !ok {
		return "unknown error"
	}
	str, ok := exc.ToString(s.ctx)
	if !ok {
		return exc.String()
	}
	return str
}

func (s *shell) stats() string {
	st := s.engine.Stats()
	return fmt.Sprintf("handles: %s live, %s tracked, %s released, %s pending",
		humanize.Comma(int64(st.Live)),
		humanize.Comma(int64(st.Tracked)),
		humanize.Comma(int64(st.Released)),
		humanize.Comma(int64(st.Pending)))
}

// repl reads lines from a raw-mode terminal until :quit or EOF.
func (s *shell) repl(in *os.File) error {
	fd := int(in.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, os.Stdout}, "> ")
	s.out = t

	fmt.Fprintf(t, "jsbridge %s, :stats :gc :quit\r\n", jsbridge.Version())
	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.TrimSpace(line) {
		case "":
			continue
		case ":quit":
			return nil
		case ":stats":
			fmt.Fprintln(t, s.stats())
			continue
		case ":gc":
			fmt.Fprintf(t, "released %s handles\n", humanize.Comma(int64(s.engine.GC())))
			continue
		}
		_ = s.runSource(line, "<repl>", false)
	}
}
