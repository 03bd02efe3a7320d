package runlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire(t *testing.T) {
	l := New(zerolog.Nop())

	tok, ok := l.TryAcquire("a")
	require.True(t, ok)
	assert.NotEmpty(t, tok.ID)
	assert.True(t, l.Held("a"))

	_, ok = l.TryAcquire("a")
	assert.False(t, ok)

	// Distinct keys do not contend
	other, ok := l.TryAcquire("b")
	require.True(t, ok)
	require.NoError(t, l.Release(other))

	require.NoError(t, l.Release(tok))
	assert.False(t, l.Held("a"))
	assert.ErrorIs(t, l.Release(tok), ErrNotHeld)
}

func TestFIFOHandoff(t *testing.T) {
	l := New(zerolog.Nop())
	holder, ok := l.TryAcquire("cfg")
	require.True(t, ok)

	var tickets []*Ticket
	for range 5 {
		tk := l.Enqueue("cfg")
		assert.True(t, tk.Queued())
		tickets = append(tickets, tk)
	}
	assert.Equal(t, 5, l.Waiting("cfg"))

	// Nobody may jump the queue while tickets wait
	_, ok = l.TryAcquire("cfg")
	assert.False(t, ok)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	// Start waiters in reverse so goroutine scheduling cannot explain the order
	for i := len(tickets) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := tickets[i].Wait(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			assert.NoError(t, l.Release(tok))
		}(i)
	}

	require.NoError(t, l.Release(holder))
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.False(t, l.Held("cfg"))
	assert.Zero(t, l.Waiting("cfg"))
}

func TestEnqueueFreeKey(t *testing.T) {
	l := New(zerolog.Nop())
	tk := l.Enqueue("cfg")
	assert.False(t, tk.Queued())

	tok, err := tk.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Release(tok))
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	l := New(zerolog.Nop())
	holder, ok := l.TryAcquire("cfg")
	require.True(t, ok)

	got := make(chan *Token, 1)
	go func() {
		tok, err := l.Acquire(context.Background(), "cfg")
		assert.NoError(t, err)
		got <- tok
	}()

	require.Eventually(t, func() bool { return l.Waiting("cfg") == 1 }, time.Second, time.Millisecond)
	select {
	case <-got:
		t.Fatal("acquired while held")
	default:
	}

	require.NoError(t, l.Release(holder))
	tok := <-got
	assert.Equal(t, "cfg", tok.Key)
	require.NoError(t, l.Release(tok))
}

func TestCancelledWaitLeavesQueue(t *testing.T) {
	l := New(zerolog.Nop())
	holder, ok := l.TryAcquire("cfg")
	require.True(t, ok)

	first := l.Enqueue("cfg")
	second := l.Enqueue("cfg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := first.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, l.Waiting("cfg"))

	require.NoError(t, l.Release(holder))
	tok, err := second.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Release(tok))
}

func TestLockFileAcrossLockers(t *testing.T) {
	dir := t.TempDir()
	a := New(zerolog.Nop(), WithLockDir(dir))
	b := New(zerolog.Nop(), WithLockDir(dir))

	tok, ok := a.TryAcquire("/etc/seedkeeper/config.yaml")
	require.True(t, ok)
	assert.FileExists(t, a.LockPath("/etc/seedkeeper/config.yaml"))

	_, ok = b.TryAcquire("/etc/seedkeeper/config.yaml")
	assert.False(t, ok)
	assert.False(t, b.Held("/etc/seedkeeper/config.yaml"))

	require.NoError(t, a.Release(tok))

	tok, ok = b.TryAcquire("/etc/seedkeeper/config.yaml")
	require.True(t, ok)
	require.NoError(t, b.Release(tok))
}
