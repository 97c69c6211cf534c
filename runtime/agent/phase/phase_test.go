package phase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cascadekit/cascade/runtime/agent/echo"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
	"github.com/cascadekit/cascade/runtime/agent/ward"
)

func TestRunnerSingleAttemptSuccess(t *testing.T) {
	r := New(Config{Name: "draft"}, nil)
	trace := echo.New("session", "")
	out, err := r.Run(context.Background(), "input", trace, func(_ context.Context, in any, _ *echo.Echo) (any, error) {
		return in.(string) + "-done", nil
	})
	require.NoError(t, err)
	require.Equal(t, "input-done", out.Value)
	require.Equal(t, 1, out.Attempts)
}

func TestRunnerPostWardRetryThenSuccess(t *testing.T) {
	calls := 0
	failOnce := ward.ValidatorFunc(func(_ context.Context, in ward.Input) (ward.Result, error) {
		calls++
		if calls == 1 {
			return ward.Result{OK: false, Message: "not yet"}, nil
		}
		return ward.Result{OK: true}, nil
	})
	r := New(Config{
		Name:        "draft",
		MaxAttempts: 3,
		PostWards:   []ward.Registration{{Name: "retry-once", Mode: ward.ModeRetry, Validator: failOnce}},
	}, nil)
	trace := echo.New("session", "")
	out, err := r.Run(context.Background(), "x", trace, func(_ context.Context, in any, _ *echo.Echo) (any, error) {
		return in, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Attempts)
	require.Len(t, out.PostOutcomes, 2)
}

func TestRunnerBlockingWardFails(t *testing.T) {
	blocking := ward.ValidatorFunc(func(_ context.Context, in ward.Input) (ward.Result, error) {
		return ward.Result{OK: false, Message: "nope"}, nil
	})
	r := New(Config{
		Name:     "draft",
		PreWards: []ward.Registration{{Name: "gate", Mode: ward.ModeBlocking, Validator: blocking}},
	}, nil)
	trace := echo.New("session", "")
	_, err := r.Run(context.Background(), "x", trace, func(_ context.Context, in any, _ *echo.Echo) (any, error) {
		t.Fatal("body should not run when blocked")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrBlocked)
}

func TestRunnerLoopUntilDrivesRetry(t *testing.T) {
	attempts := 0
	r := New(Config{
		Name:        "draft",
		MaxAttempts: 3,
		LoopUntil: func(_ context.Context, output any) (bool, error) {
			return output.(int) >= 2, nil
		},
	}, nil)
	trace := echo.New("session", "")
	out, err := r.Run(context.Background(), nil, trace, func(_ context.Context, _ any, _ *echo.Echo) (any, error) {
		attempts++
		return attempts, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Value)
	require.Equal(t, 2, out.Attempts)
}

func TestRunnerExhaustsMaxAttempts(t *testing.T) {
	r := New(Config{
		Name:        "draft",
		MaxAttempts: 2,
		LoopUntil: func(_ context.Context, _ any) (bool, error) {
			return false, nil
		},
	}, nil)
	trace := echo.New("session", "")
	_, err := r.Run(context.Background(), nil, trace, func(_ context.Context, _ any, _ *echo.Echo) (any, error) {
		return "x", nil
	})
	require.ErrorIs(t, err, ErrAttemptsExhausted)
}

type recordingPublisher struct {
	states []string
}

func (p *recordingPublisher) PublishProgress(_ context.Context, pr Progress) {
	p.states = append(p.states, pr.State)
}

func TestRunnerPublishesProgress(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(Config{Name: "draft"}, pub)
	trace := echo.New("session", "")
	_, err := r.Run(context.Background(), "x", trace, func(_ context.Context, in any, _ *echo.Echo) (any, error) {
		return in, nil
	})
	require.NoError(t, err)
	require.Contains(t, pub.states, "body")
	require.Contains(t, pub.states, "done")
}

func TestRunnerSoundingsMode(t *testing.T) {
	r := New(Config{
		Name: "draft",
		Mode: BodyModeSoundings,
		Soundings: soundings.Spec{
			N:         3,
			Evaluator: soundings.FirstEvaluator{},
		},
	}, nil)
	trace := echo.New("session", "")
	out, err := r.Run(context.Background(), "x", trace, func(_ context.Context, in any, _ *echo.Echo) (any, error) {
		return in.(string) + "!", nil
	})
	require.NoError(t, err)
	require.Equal(t, "x!", out.Value)
}
