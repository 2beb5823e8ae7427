// Package log provides the module-scoped, leveled, structured logger used
// throughout the fabric. The API and terminal-coloring behavior follow the
// logging conventions of this repository's origins: a small context-carrying
// Logger interface, module loggers created once per package, and colorized
// output when attached to a terminal.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging verbosity level, ordered most to least severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Lvl]color.Attribute{
	LvlCrit:  color.FgMagenta,
	LvlError: color.FgRed,
	LvlWarn:  color.FgYellow,
	LvlInfo:  color.FgGreen,
	LvlDebug: color.FgCyan,
	LvlTrace: color.FgWhite,
}

// Logger is a context-carrying structured logger. Calling New appends
// key-value context that is included on every subsequent call.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
}

type handler struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	level    Lvl
}

var (
	defaultHandler = newHandler(os.Stderr)
)

func newHandler(w io.Writer) *handler {
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &handler{out: colorable.NewColorable(osFile(w)), colorize: colorize, level: LvlInfo}
}

func osFile(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return os.Stderr
}

// SetLevel sets the minimum level emitted by the default handler.
func SetLevel(l Lvl) {
	defaultHandler.mu.Lock()
	defer defaultHandler.mu.Unlock()
	defaultHandler.level = l
}

func (h *handler) log(lvl Lvl, module, msg string, ctx []interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lvl > h.level {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	tag := lvl.String()
	if h.colorize {
		tag = color.New(levelColor[lvl]).Sprint(tag)
	}
	line := fmt.Sprintf("%s [%s] %-5s %s", ts, module, tag, msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	if len(ctx)%2 == 1 {
		line += fmt.Sprintf(" %v=MISSING", ctx[len(ctx)-1])
	}
	fmt.Fprintln(h.out, line)
}

// logger is the concrete Logger implementation: a module name plus bound
// context key-values, sharing the package-level handler.
type logger struct {
	module string
	ctx    []interface{}
}

// New returns a root logger carrying the given context. Call sites typically
// hold onto the result for the lifetime of a subsystem.
func New(ctx ...interface{}) Logger {
	return &logger{module: "fabric", ctx: append([]interface{}{}, ctx...)}
}

// NewModuleLogger returns a logger scoped to the named module, mirroring the
// one-logger-per-package convention used across this codebase's managers.
func NewModuleLogger(module string) Logger {
	return &logger{module: module}
}

func (l *logger) New(ctx ...interface{}) Logger {
	merged := append(append([]interface{}{}, l.ctx...), ctx...)
	return &logger{module: l.module, ctx: merged}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	all := append(append([]interface{}{}, l.ctx...), ctx...)
	if lvl <= LvlError {
		all = append(all, "caller", callerOf(3))
	}
	defaultHandler.log(lvl, l.module, msg, all)
}

func callerOf(skip int) string {
	c := stack.Caller(skip)
	return fmt.Sprintf("%+v", c)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// Security logs a security-relevant event (authentication failure, replay
// detection) at Warn with a security=true marker, per the propagation policy:
// these are surfaced to the caller AND logged.
func Security(l Logger, msg string, ctx ...interface{}) {
	l.Warn(msg, append(append([]interface{}{}, ctx...), "security", true)...)
}
