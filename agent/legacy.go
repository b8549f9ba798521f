package agent

import (
	"context"
)

// LegacyFunc is an arbitrary input -> output function predating the
// envelope contract — a thin shim for wrapping the handful of bespoke
// scripts agents started life as before they adopted Process.
type LegacyFunc func(ctx context.Context, input any) (any, error)

// legacyProcessor adapts a LegacyFunc into a Processor so it can be driven
// through the same BaseAgent six-phase Execute as any other agent. On
// success it reports the default confidence (0.8 across the board); on
// failure it surfaces through BaseAgent's standard error envelope — callers
// never need a second code path for legacy agents.
type legacyProcessor struct {
	fn LegacyFunc
}

func (p legacyProcessor) Process(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
	out, err := p.fn(ctx, input)
	if err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{Data: out}, nil
}

// NewLegacyAdapter wraps fn as a fully envelope-compliant Agent, per
// Design Notes §9: "use it instead of inheritance."
func NewLegacyAdapter(id string, fn LegacyFunc, opts ...Option) (*BaseAgent, error) {
	return NewBaseAgent(id, legacyProcessor{fn: fn}, opts...)
}
