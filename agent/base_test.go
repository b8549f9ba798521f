package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fwornle/kg-orchestrator/envelope"
)

func TestBaseAgent_HappyPath(t *testing.T) {
	r := require.New(t)

	ba, err := NewBaseAgent("semantic_analyzer", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		return ProcessResult{Data: "ok"}, nil
	}))
	r.NoError(err)

	resp := ba.Execute(context.Background(), "input", &InvocationContext{StepName: "semantic_analysis"})
	r.True(resp.IsSuccess())
	r.Equal("semantic_analyzer", resp.AgentID)
	r.Equal("semantic_analysis", resp.Step)
	r.Equal(envelope.QualityScore(resp.Metadata.Confidence), resp.Metadata.QualityScore)
	// Data/semantic/processing default to 0.8 and upstream influence is 1.0
	// with no upstream context: (0.2+0.2+0.2+0.16)/0.9.
	r.InDelta(0.76/0.9, resp.Metadata.Confidence, 1e-9)
}

func TestBaseAgent_ProcessError_BecomesEnvelope(t *testing.T) {
	r := require.New(t)

	ba, err := NewBaseAgent("flaky", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		return ProcessResult{}, errors.New("boom")
	}))
	r.NoError(err)

	resp := ba.Execute(context.Background(), nil, &InvocationContext{StepName: "s"})
	r.Nil(resp.Data)
	r.Equal(0.0, resp.Metadata.Confidence)
	r.True(resp.HasCriticalNonRetryable() == false) // it IS retryable
	r.True(resp.HasRetryable())
	r.NotNil(resp.Routing.RetryRecommendation)
	r.True(resp.Routing.RetryRecommendation.ShouldRetry)
}

func TestBaseAgent_ErrorEnvelope_StopsAfterMaxRetries(t *testing.T) {
	r := require.New(t)

	ba, err := NewBaseAgent("flaky", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		return ProcessResult{}, errors.New("still broken")
	}))
	r.NoError(err)

	resp := ba.Execute(context.Background(), nil, &InvocationContext{StepName: "s", RetryAttempt: 3})
	r.Nil(resp.Routing.RetryRecommendation)
}

func TestBaseAgent_Panic_BecomesEnvelope(t *testing.T) {
	r := require.New(t)

	ba, err := NewBaseAgent("crasher", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		panic("unexpected")
	}))
	r.NoError(err)

	resp := ba.Execute(context.Background(), nil, &InvocationContext{StepName: "s"})
	r.Nil(resp.Data)
	r.Equal(0.0, resp.Metadata.Confidence)
	r.Len(resp.Metadata.Issues, 1)
	r.Equal("AGENT_EXECUTION_ERROR", resp.Metadata.Issues[0].Code)
}

func TestBaseAgent_UpstreamCriticalIssuePropagates(t *testing.T) {
	r := require.New(t)

	ba, err := NewBaseAgent("downstream", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		return ProcessResult{Data: "ok"}, nil
	}))
	r.NoError(err)

	ic := &InvocationContext{
		StepName: "s",
		Upstream: []envelope.UpstreamContext{
			{
				SourceStep: "upstream_step",
				Confidence: 0.9,
				RelevantIssues: []envelope.AgentIssue{
					{Severity: envelope.SeverityCritical, Message: "schema drift", Category: envelope.CategoryValidation},
				},
			},
		},
	}
	resp := ba.Execute(context.Background(), "in", ic)

	found := false
	for _, iss := range resp.Metadata.Issues {
		if iss.Code == "UPSTREAM_CRITICAL_ISSUE" && iss.Severity == envelope.SeverityWarning {
			found = true
		}
	}
	r.True(found, "expected a propagated UPSTREAM_CRITICAL_ISSUE warning")
}

func TestBaseAgent_BlockingThreshold_SuggestsSkip(t *testing.T) {
	r := require.New(t)

	// Upstream influence is 1.0 with no upstream context, so the three
	// overridden factors must sit well below 0.3 to pull the weighted mean
	// under the blocking threshold: (0.0125+0.0125+0.2+0.01)/0.9 ≈ 0.26.
	low := 0.05
	ba, err := NewBaseAgent("uncertain", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		return ProcessResult{Confidence: ConfidenceOverride{DataCompleteness: &low, SemanticCoherence: &low, ProcessingQuality: &low}}, nil
	}))
	r.NoError(err)

	resp := ba.Execute(context.Background(), "in", &InvocationContext{StepName: "s"})
	r.Less(resp.Metadata.Confidence, defaultBlockingThreshold)

	foundSkip := false
	for _, s := range resp.Routing.Suggestions {
		if s.Action == envelope.ActionSkip {
			foundSkip = true
			r.InDelta(0.9, s.Confidence, 1e-9)
		}
	}
	r.True(foundSkip)
}

func TestLegacyAdapter(t *testing.T) {
	r := require.New(t)

	ag, err := NewLegacyAdapter("legacy_scraper", func(ctx context.Context, input any) (any, error) {
		return "scraped", nil
	})
	r.NoError(err)

	resp := ag.Execute(context.Background(), nil, &InvocationContext{StepName: "scrape"})
	r.Equal("scraped", resp.Data)
	r.InDelta(0.8, resp.Metadata.Confidence, 1e-9)
}

func TestRegistry(t *testing.T) {
	r := require.New(t)

	reg := NewRegistry()
	ba, err := NewBaseAgent("a1", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		return ProcessResult{Data: "x"}, nil
	}))
	r.NoError(err)

	r.NoError(reg.Register(ba))
	r.ErrorIs(reg.Register(ba), ErrAlreadyRegistered)

	got, err := reg.Get("a1")
	r.NoError(err)
	r.Equal("a1", got.ID())

	_, err = reg.Get("missing")
	r.ErrorIs(err, ErrNotFound)

	reg.Reset()
	r.False(reg.Has("a1"))
}

func TestBaseAgent_ProcessingTimeRecorded(t *testing.T) {
	r := require.New(t)

	ba, err := NewBaseAgent("slow", ProcessorFunc(func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
		time.Sleep(2 * time.Millisecond)
		return ProcessResult{Data: "x"}, nil
	}))
	r.NoError(err)

	resp := ba.Execute(context.Background(), nil, &InvocationContext{StepName: "s"})
	r.GreaterOrEqual(resp.Metadata.ProcessingTimeMs, int64(1))
}
