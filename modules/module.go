// Package modules defines the capability contract the agent dispatches on.
//
// A Module is one unit of work selected by name at runtime. A Task wraps
// exactly one Module; two Tasks are equal when their modules are of the same
// Kind, regardless of the arguments they were built with.
package modules

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var ErrUnsupportedModule = errors.New("unsupported module")

// Kind is the closed set of capabilities the agent knows how to build.
type Kind int

const (
	KindFileHarvest Kind = iota
	KindScreenCapture

	numKinds
)

var kindNames = [numKinds]string{
	KindFileHarvest:   "file_harvest",
	KindScreenCapture: "screen_capture",
}

var kindAliases = map[string]Kind{
	"file_grabber": KindFileHarvest,
	"screenshot":   KindScreenCapture,
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Kinds returns every member of the enumeration in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// KindForName resolves a module name or alias, case-insensitively.
func KindForName(name string) (Kind, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, s := range kindNames {
		if s == n {
			return Kind(k), true
		}
	}
	k, ok := kindAliases[n]
	return k, ok
}

type RunContext struct {
	RunID  string
	Logger *slog.Logger
}

// Result is what a module hands back to the host. Output is the JSON-ready
// artifact; it is nil when the run produced nothing worth sending.
type Result struct {
	Module string
	RunID  string
	Items  int
	Output any
	// Location is a local artifact left behind for the host, if any.
	Location string
}

type Module interface {
	Kind() Kind
	Name() string
	Run(ctx context.Context, rc RunContext) (Result, error)
}

type Task struct {
	module Module
}

func NewTask(m Module) *Task {
	if m == nil {
		panic("modules: NewTask with nil module")
	}
	return &Task{module: m}
}

func (t *Task) Module() Module { return t.module }

func (t *Task) Kind() Kind { return t.module.Kind() }

// Equal reports whether both tasks wrap the same kind of module.
func (t *Task) Equal(o *Task) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Kind() == o.Kind()
}

func (t *Task) Run(ctx context.Context, rc RunContext) (Result, error) {
	if rc.Logger == nil {
		rc.Logger = slog.New(slog.DiscardHandler)
	}
	rc.Logger.Info("task started", "module", t.module.Name(), "run_id", rc.RunID)
	res, err := t.module.Run(ctx, rc)
	if err != nil {
		rc.Logger.Error("task failed", "module", t.module.Name(), "run_id", rc.RunID, "error", err)
		return res, err
	}
	rc.Logger.Info("task finished", "module", t.module.Name(), "run_id", rc.RunID, "items", res.Items)
	return res, nil
}
