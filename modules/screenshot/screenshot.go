// Package screenshot is the screen capture capability. Capturing pixels is
// platform work left to the host, which injects a Capturer.
package screenshot

import (
	"context"
	"errors"
	"fmt"

	"harvest-agent/evidence"
	"harvest-agent/modules"
)

var ErrNoCapturer = errors.New("no screen capturer configured")

// Capturer grabs one image of the given display, encoded as PNG.
type Capturer interface {
	Capture(ctx context.Context, display int) ([]byte, error)
}

type Config struct {
	Display int `json:"display"`
}

// Output is the JSON artifact of a capture.
type Output struct {
	Screenshot string `json:"screenshot"`
}

type Module struct {
	cfg      Config
	capturer Capturer
}

func New(cfg Config, c Capturer) (*Module, error) {
	if cfg.Display < 0 {
		return nil, fmt.Errorf("invalid screen capture config: display %d", cfg.Display)
	}
	return &Module{cfg: cfg, capturer: c}, nil
}

func (m *Module) Kind() modules.Kind { return modules.KindScreenCapture }

func (m *Module) Name() string { return m.Kind().String() }

func (m *Module) Run(ctx context.Context, rc modules.RunContext) (modules.Result, error) {
	res := modules.Result{Module: m.Name(), RunID: rc.RunID}
	if m.capturer == nil {
		return res, ErrNoCapturer
	}
	img, err := m.capturer.Capture(ctx, m.cfg.Display)
	if err != nil {
		return res, fmt.Errorf("capture display %d: %w", m.cfg.Display, err)
	}
	if len(img) == 0 {
		return res, nil
	}
	res.Items = 1
	res.Output = Output{Screenshot: evidence.Encode(img)}
	return res, nil
}
