package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contextnexus/internal/core"
	"contextnexus/internal/registry"
)

type scriptedConnector struct {
	id    string
	calls int32

	mu      sync.Mutex
	fail    bool
	failErr error
}

func newScriptedConnector(id string) *scriptedConnector {
	return &scriptedConnector{id: id, failErr: errors.New("boom")}
}

func (c *scriptedConnector) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *scriptedConnector) Info() registry.Info {
	return registry.Info{ID: c.id, Capabilities: map[string]struct{}{"chat": {}}}
}

func (c *scriptedConnector) Send(ctx context.Context, prompt core.Prompt, opts registry.SendOptions) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	c.mu.Lock()
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return "", c.failErr
	}
	return "ok:" + c.id, nil
}

func (c *scriptedConnector) Stream(_ context.Context, _ core.Prompt, _ registry.SendOptions) (<-chan registry.StreamChunk, error) {
	atomic.AddInt32(&c.calls, 1)
	c.mu.Lock()
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return nil, c.failErr
	}
	ch := make(chan registry.StreamChunk, 2)
	ch <- registry.StreamChunk{Text: "ok:"}
	ch <- registry.StreamChunk{Text: c.id, Done: true}
	close(ch)
	return ch, nil
}

func (c *scriptedConnector) callCount() int {
	return int(atomic.LoadInt32(&c.calls))
}

func textPrompt(s string) core.Prompt {
	return core.Prompt{Text: s}
}

func TestDispatchFailoverInvokesSecondModelOnce(t *testing.T) {
	reg := registry.New()
	m1 := newScriptedConnector("m1")
	m2 := newScriptedConnector("m2")
	m1.setFail(true)
	reg.Register("m1", m1)
	reg.Register("m2", m2)

	d := New(reg, []core.ModelConfig{
		{ID: "m1", Weight: 1, MaxConcurrent: 1, FailoverModels: []string{"m2"}},
		{ID: "m2", Weight: 1, MaxConcurrent: 1},
	})

	resp, err := d.Dispatch(context.Background(), textPrompt("hi"), DispatchOptions{PreferredModelID: "m1"})
	require.NoError(t, err)
	require.Equal(t, "ok:m2", resp)
	require.Equal(t, 1, m2.callCount())

	status := d.Status()
	byID := map[string]StatusSnapshot{}
	for _, s := range status {
		byID[s.ID] = s
	}
	require.EqualValues(t, 1, statsOf(t, d, "m1").FailedCalls)
	require.EqualValues(t, 1, statsOf(t, d, "m2").SuccessCalls)
}

func TestDispatchCircuitBreakerTripsThenResets(t *testing.T) {
	reg := registry.New()
	m1 := newScriptedConnector("m1")
	m1.setFail(true)
	reg.Register("m1", m1)

	now := time.Now()
	clock := func() time.Time { return now }

	d := New(reg, []core.ModelConfig{
		{ID: "m1", Weight: 1, MaxConcurrent: 1},
	}, WithClock(clock), WithCircuitBreaker(3, time.Second))

	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), textPrompt("hi"), DispatchOptions{PreferredModelID: "m1"})
		require.Error(t, err)
	}

	// 4th dispatch: m1 is broken, no other model registered, so selection
	// falls through to the registry default (m1 itself) and tryAcquire
	// rejects it because the breaker is open.
	_, err := d.Dispatch(context.Background(), textPrompt("hi"), DispatchOptions{PreferredModelID: "m1"})
	require.Error(t, err)
	require.Equal(t, core.KindUnavailable, core.ErrorOf(err))
	require.Equal(t, 3, m1.callCount())

	// advance past the break duration and let m1 succeed.
	now = now.Add(1100 * time.Millisecond)
	m1.setFail(false)
	resp, err := d.Dispatch(context.Background(), textPrompt("hi"), DispatchOptions{PreferredModelID: "m1"})
	require.NoError(t, err)
	require.Equal(t, "ok:m1", resp)
}

func TestDispatchConcurrencyNeverExceedsMax(t *testing.T) {
	reg := registry.New()
	blocker := make(chan struct{})
	slow := &blockingConnector{id: "m1", release: blocker}
	reg.Register("m1", slow)

	d := New(reg, []core.ModelConfig{
		{ID: "m1", Weight: 1, MaxConcurrent: 2},
	})

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), textPrompt("hi"), DispatchOptions{PreferredModelID: "m1"})
			results <- err
		}()
	}

	// give goroutines a moment to pile up against the cap, then observe
	// that active calls never exceeds MaxConcurrent.
	time.Sleep(20 * time.Millisecond)
	snap := d.Status()[0]
	require.LessOrEqual(t, snap.ActiveCalls, 2)

	close(blocker)
	wg.Wait()
	close(results)
	for err := range results {
		_ = err // some may be rejected once the cap is saturated, that's fine
	}
}

func TestDispatchStreamAccumulatesChunksAndRecordsSuccess(t *testing.T) {
	reg := registry.New()
	m1 := newScriptedConnector("m1")
	reg.Register("m1", m1)

	d := New(reg, []core.ModelConfig{{ID: "m1", Weight: 1, MaxConcurrent: 1}})

	id, chunks, err := d.DispatchStream(context.Background(), textPrompt("hi"), DispatchOptions{PreferredModelID: "m1"})
	require.NoError(t, err)
	require.Equal(t, "m1", id)

	var text string
	for c := range chunks {
		text += c.Text
	}
	require.Equal(t, "ok:m1", text)

	// wait for the draining goroutine's recordSuccess before reading stats.
	require.Eventually(t, func() bool {
		return statsOf(t, d, "m1").SuccessCalls == 1
	}, time.Second, time.Millisecond)
}

func statsOf(t *testing.T, d *Dispatcher, id string) core.ModelStats {
	t.Helper()
	ms, ok := d.models[id]
	require.True(t, ok)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.stats
}

// blockingConnector holds Send open until release is closed, to exercise
// the concurrency cap under real goroutine contention.
type blockingConnector struct {
	id      string
	release chan struct{}
}

func (b *blockingConnector) Info() registry.Info {
	return registry.Info{ID: b.id, Capabilities: map[string]struct{}{"chat": {}}}
}

func (b *blockingConnector) Send(ctx context.Context, prompt core.Prompt, opts registry.SendOptions) (string, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "ok", nil
}

func (b *blockingConnector) Stream(context.Context, core.Prompt, registry.SendOptions) (<-chan registry.StreamChunk, error) {
	return nil, nil
}
