package toolkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/model"
)

func registerEcho(t *testing.T, c *com.COM, name string) {
	t.Helper()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          name,
		ExecutionKind: com.ExecutionServer,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{Content: []model.Part{model.TextPart{Text: "ok"}}}, nil
		},
	}))
}

func TestExecuteToolCalls_UnknownToolYieldsToolNotFound(t *testing.T) {
	c := com.New()
	e := New()

	results := e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "missing"}}, c)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, string(KindToolNotFound), results[0].ErrorKind)
}

func TestExecuteToolCalls_ServerHandlerSuccess(t *testing.T) {
	c := com.New()
	registerEcho(t, c, "echo")
	e := New()

	results := e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "echo"}}, c)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestExecuteToolCalls_ValidationErrorOnBadInput(t *testing.T) {
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "needs_query",
		ExecutionKind: com.ExecutionServer,
		ParameterSchema: map[string]any{
			"type":     "object",
			"required": []any{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{}, nil
		},
	}))
	e := New()

	results := e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "needs_query", Input: map[string]any{}}}, c)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, string(KindValidationError), results[0].ErrorKind)
}

func TestExecuteToolCalls_ResultsPreserveOriginalCallOrder(t *testing.T) {
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "slow",
		ExecutionKind: com.ExecutionServer,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			time.Sleep(20 * time.Millisecond)
			return com.HandlerResult{Content: []model.Part{model.TextPart{Text: "slow"}}}, nil
		},
	}))
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "fast",
		ExecutionKind: com.ExecutionServer,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{Content: []model.Part{model.TextPart{Text: "fast"}}}, nil
		},
	}))
	e := New()

	calls := []com.ToolUseEntry{{ID: "1", Name: "slow"}, {ID: "2", Name: "fast"}}
	results := e.ExecuteToolCalls(context.Background(), calls, c)

	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ToolUseID)
	assert.Equal(t, "2", results[1].ToolUseID)
}

func TestExecuteToolCalls_ConfirmationDeniedYieldsUserDenied(t *testing.T) {
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "delete_everything",
		ExecutionKind: com.ExecutionServer,
		Confirmation:  com.ConfirmationPolicy{Always: true},
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{}, nil
		},
	}))
	e := New()

	done := make(chan []com.ToolResultEntry, 1)
	go func() {
		done <- e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "delete_everything"}}, c)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, e.DeliverConfirmation("1", false))

	results := <-done
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, string(KindUserDenied), results[0].ErrorKind)
}

func TestExecuteToolCalls_ProviderKindIsSyntheticSuccessWithoutReexecution(t *testing.T) {
	c := com.New()
	called := false
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "already_run",
		ExecutionKind: com.ExecutionProvider,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			called = true
			return com.HandlerResult{}, nil
		},
	}))
	e := New()

	results := e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "already_run"}}, c)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.False(t, called)
}

func TestExecuteToolCalls_HandlerErrorMapsToClassifiedResult(t *testing.T) {
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "flaky",
		ExecutionKind: com.ExecutionServer,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{}, errors.New("request failed: 401 unauthorized")
		},
	}))
	e := New()

	results := e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "flaky"}}, c)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, string(KindAuthError), results[0].ErrorKind)
}

func TestExecuteToolCalls_MutexGroupSerializesConcurrentCalls(t *testing.T) {
	c := com.New()
	var active int
	var maxActive int
	var mu int32
	handler := func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
		active++
		if active > maxActive {
			maxActive = active
		}
		time.Sleep(10 * time.Millisecond)
		active--
		_ = mu
		return com.HandlerResult{}, nil
	}
	require.NoError(t, c.RegisterTool(&com.ToolSpec{Name: "a", ExecutionKind: com.ExecutionServer, MutexGroup: "exclusive", Handler: handler}))
	require.NoError(t, c.RegisterTool(&com.ToolSpec{Name: "b", ExecutionKind: com.ExecutionServer, MutexGroup: "exclusive", Handler: handler}))
	e := New()

	calls := []com.ToolUseEntry{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}
	e.ExecuteToolCalls(context.Background(), calls, c)

	assert.LessOrEqual(t, maxActive, 1, "calls in the same mutex group must never run concurrently")
}

func TestExecuteToolCalls_ClientResultDeliveredAfterAwait(t *testing.T) {
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:             "ask_client",
		ExecutionKind:    com.ExecutionClient,
		RequiresResponse: true,
		Timeout:          2 * time.Second,
	}))
	e := New()

	done := make(chan []com.ToolResultEntry, 1)
	go func() {
		done <- e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "ask_client"}}, c)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, e.DeliverResult("1", ClientResult{Success: true, Content: []model.Part{model.TextPart{Text: "answer"}}}))

	results := <-done
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestExecuteToolCalls_PerToolTimeoutClassifiesAsTimeoutError(t *testing.T) {
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "slow",
		ExecutionKind: com.ExecutionServer,
		Timeout:       10 * time.Millisecond,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			<-ctx.Done()
			return com.HandlerResult{}, ctx.Err()
		},
	}))
	e := New()

	results := e.ExecuteToolCalls(context.Background(), []com.ToolUseEntry{{ID: "1", Name: "slow"}}, c)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, string(KindTimeoutError), results[0].ErrorKind,
		"a tool's own per-call timeout firing must classify as recoverable TIMEOUT_ERROR, not ABORT_ERROR")
}

func TestExecuteToolCalls_CallerContextCancelClassifiesAsAbortError(t *testing.T) {
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "slow",
		ExecutionKind: com.ExecutionServer,
		Timeout:       time.Second,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			<-ctx.Done()
			return com.HandlerResult{}, ctx.Err()
		},
	}))
	e := New()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	results := e.ExecuteToolCalls(ctx, []com.ToolUseEntry{{ID: "1", Name: "slow"}}, c)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, string(KindAbortError), results[0].ErrorKind,
		"the caller's own ctx being canceled is a real session abort")
}
