// Package registry maps module names to constructors. Every modules.Kind
// must have an entry in factories.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"

	"harvest-agent/modules"
	"harvest-agent/modules/harvest"
	"harvest-agent/modules/screenshot"
)

// Deps carries the collaborators a module may need besides its arguments.
type Deps struct {
	Rand     *rand.Rand
	Capturer screenshot.Capturer
}

type Factory func(raw json.RawMessage, deps Deps) (modules.Module, error)

var factories = map[modules.Kind]Factory{
	modules.KindFileHarvest: func(raw json.RawMessage, deps Deps) (modules.Module, error) {
		var cfg harvest.Config
		if err := strictUnmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		var opts []harvest.Option
		if deps.Rand != nil {
			opts = append(opts, harvest.WithRand(deps.Rand))
		}
		return harvest.New(cfg, opts...)
	},
	modules.KindScreenCapture: func(raw json.RawMessage, deps Deps) (modules.Module, error) {
		var cfg screenshot.Config
		if err := strictUnmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return screenshot.New(cfg, deps.Capturer)
	},
}

// strictUnmarshal rejects unknown fields; empty input keeps the zero value.
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode module args: %w", err)
	}
	return nil
}

// BuildTask resolves name and constructs its module from args. An unknown
// name returns an error wrapping modules.ErrUnsupportedModule.
func BuildTask(name string, args json.RawMessage, deps Deps) (*modules.Task, error) {
	kind, ok := modules.KindForName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", modules.ErrUnsupportedModule, name)
	}
	f, ok := factories[kind]
	if !ok {
		panic(fmt.Sprintf("registry: module kind %s has no factory", kind))
	}
	m, err := f(args, deps)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", kind, err)
	}
	return modules.NewTask(m), nil
}

// Names lists the canonical module names, sorted.
func Names() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}
