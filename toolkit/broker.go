package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentrt/core/model"
)

// ClientResult is the payload a CLIENT-kind tool call's result future
// resolves to, delivered by the client surface out of band from the
// executor's own goroutine.
type ClientResult struct {
	Content []model.Part
	Success bool
}

// FutureBroker decouples the CLIENT execution kind's pending-result future
// (and the confirmation-await path) from the executor's process: the
// in-memory implementation suffices when the client surface lives in the
// same process, while the Redis-backed implementation supports a client
// surface running in a different process from the engine.
type FutureBroker interface {
	// AwaitConfirmation blocks until ResolveConfirmation is called for
	// callID, ctx is canceled, or timeout elapses.
	AwaitConfirmation(ctx context.Context, callID string, timeout time.Duration) (approved bool, err error)
	ResolveConfirmation(callID string, approved bool) error

	// AwaitResult blocks until ResolveResult is called for callID, ctx is
	// canceled, or timeout elapses.
	AwaitResult(ctx context.Context, callID string, timeout time.Duration) (ClientResult, error)
	ResolveResult(callID string, result ClientResult) error
}

// ErrBrokerTimeout is returned by AwaitConfirmation/AwaitResult when the
// timeout elapses before a resolution arrives.
var ErrBrokerTimeout = fmt.Errorf("toolkit: broker wait timed out")

// memoryBroker is the default FutureBroker: in-process channels keyed by
// tool-call id.
type memoryBroker struct {
	mu            sync.Mutex
	confirmations map[string]chan bool
	results       map[string]chan ClientResult
}

// NewMemoryBroker constructs the default in-process FutureBroker.
func NewMemoryBroker() FutureBroker {
	return &memoryBroker{
		confirmations: make(map[string]chan bool),
		results:       make(map[string]chan ClientResult),
	}
}

func (b *memoryBroker) AwaitConfirmation(ctx context.Context, callID string, timeout time.Duration) (bool, error) {
	b.mu.Lock()
	ch, ok := b.confirmations[callID]
	if !ok {
		ch = make(chan bool, 1)
		b.confirmations[callID] = ch
	}
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		return false, ErrBrokerTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (b *memoryBroker) ResolveConfirmation(callID string, approved bool) error {
	b.mu.Lock()
	ch, ok := b.confirmations[callID]
	if !ok {
		ch = make(chan bool, 1)
		b.confirmations[callID] = ch
	}
	b.mu.Unlock()
	ch <- approved
	return nil
}

func (b *memoryBroker) AwaitResult(ctx context.Context, callID string, timeout time.Duration) (ClientResult, error) {
	b.mu.Lock()
	ch, ok := b.results[callID]
	if !ok {
		ch = make(chan ClientResult, 1)
		b.results[callID] = ch
	}
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		return ClientResult{}, ErrBrokerTimeout
	case <-ctx.Done():
		return ClientResult{}, ctx.Err()
	}
}

func (b *memoryBroker) ResolveResult(callID string, result ClientResult) error {
	b.mu.Lock()
	ch, ok := b.results[callID]
	if !ok {
		ch = make(chan ClientResult, 1)
		b.results[callID] = ch
	}
	b.mu.Unlock()
	ch <- result
	return nil
}

// redisBroker implements FutureBroker over Redis blocking list pops, for
// deployments where the client surface and the engine run in different
// processes. Confirmations and results are each delivered as a single
// RPUSH onto a call-scoped key; AwaitX performs a BLPOP with the caller's
// timeout.
type redisBroker struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedisBroker constructs a FutureBroker backed by rdb. keyPrefix
// namespaces the Redis keys used for confirmation/result delivery (e.g.
// "agentrt:tool:").
func NewRedisBroker(rdb *redis.Client, keyPrefix string) FutureBroker {
	return &redisBroker{rdb: rdb, keyPrefix: keyPrefix}
}

func (b *redisBroker) confirmKey(callID string) string { return b.keyPrefix + "confirm:" + callID }
func (b *redisBroker) resultKey(callID string) string  { return b.keyPrefix + "result:" + callID }

func (b *redisBroker) AwaitConfirmation(ctx context.Context, callID string, timeout time.Duration) (bool, error) {
	res, err := b.rdb.BLPop(ctx, timeout, b.confirmKey(callID)).Result()
	if err == redis.Nil {
		return false, ErrBrokerTimeout
	}
	if err != nil {
		return false, err
	}
	// res[0] is the key name, res[1] is the payload.
	return res[1] == "1", nil
}

func (b *redisBroker) ResolveConfirmation(callID string, approved bool) error {
	value := "0"
	if approved {
		value = "1"
	}
	return b.rdb.RPush(context.Background(), b.confirmKey(callID), value).Err()
}

func (b *redisBroker) AwaitResult(ctx context.Context, callID string, timeout time.Duration) (ClientResult, error) {
	res, err := b.rdb.BLPop(ctx, timeout, b.resultKey(callID)).Result()
	if err == redis.Nil {
		return ClientResult{}, ErrBrokerTimeout
	}
	if err != nil {
		return ClientResult{}, err
	}
	var decoded redisClientResult
	if err := json.Unmarshal([]byte(res[1]), &decoded); err != nil {
		return ClientResult{}, fmt.Errorf("toolkit: decode client result: %w", err)
	}
	return ClientResult{Content: decoded.toParts(), Success: decoded.Success}, nil
}

func (b *redisBroker) ResolveResult(callID string, result ClientResult) error {
	payload := redisClientResultFrom(result)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("toolkit: encode client result: %w", err)
	}
	return b.rdb.RPush(context.Background(), b.resultKey(callID), encoded).Err()
}

// redisClientResult is the wire shape for a ClientResult delivered over
// Redis: content is reduced to text, which covers the common case of a
// client-surface tool answering with a plain text payload. Richer part
// kinds are expected to flow through the in-memory broker within a single
// process.
type redisClientResult struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
}

func redisClientResultFrom(r ClientResult) redisClientResult {
	out := redisClientResult{Success: r.Success}
	for _, p := range r.Content {
		if tp, ok := p.(model.TextPart); ok {
			out.Text += tp.Text
		}
	}
	return out
}

func (r redisClientResult) toParts() []model.Part {
	if r.Text == "" {
		return nil
	}
	return []model.Part{model.TextPart{Text: r.Text}}
}
