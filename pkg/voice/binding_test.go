package voice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records calls and serves canned errors per operation.
type fakeTransport struct {
	mu sync.Mutex

	joins   int
	leaves  int
	plays   []Source
	pauses  int
	resumes int
	stops   int

	joinErr  error
	leaveErr error
	playErr  error
	playErrs []error
	pauseErr error
	stopErr  error
	alive    map[int64]bool
	probeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{alive: make(map[int64]bool)}
}

func (f *fakeTransport) Join(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.joinErr != nil {
		return f.joinErr
	}
	f.alive[chatID] = true
	return nil
}

func (f *fakeTransport) Leave(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	if f.leaveErr != nil {
		return f.leaveErr
	}
	delete(f.alive, chatID)
	return nil
}

func (f *fakeTransport) Play(_ context.Context, _ int64, src Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, src)
	if len(f.playErrs) > 0 {
		err := f.playErrs[0]
		f.playErrs = f.playErrs[1:]
		return err
	}
	return f.playErr
}

func (f *fakeTransport) Pause(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return f.pauseErr
}

func (f *fakeTransport) Resume(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return nil
}

func (f *fakeTransport) Stop(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeTransport) ProbeLiveness(_ context.Context, chatID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return false, f.probeErr
	}
	return f.alive[chatID], nil
}

func TestBindingAcquireIdempotent(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	binding := NewBinding(transport, nil)

	require.NoError(t, binding.Acquire(ctx, 1))
	require.NoError(t, binding.Acquire(ctx, 1))
	require.NoError(t, binding.Acquire(ctx, 1))

	assert.Equal(t, 1, transport.joins, "repeat acquire must not re-join")
	assert.True(t, binding.IsBound(1))
}

func TestBindingAcquireAlreadyJoined(t *testing.T) {
	transport := newFakeTransport()
	transport.joinErr = errors.New("GROUPCALL_ALREADY_JOINED: already joined this call")
	binding := NewBinding(transport, nil)

	require.NoError(t, binding.Acquire(context.Background(), 1))
	assert.True(t, binding.IsBound(1), "already-joined counts as success")
}

func TestBindingAcquireFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.joinErr = errors.New("flood wait")
	binding := NewBinding(transport, nil)

	err := binding.Acquire(context.Background(), 1)
	require.Error(t, err)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "join", terr.Op)
	assert.False(t, binding.IsBound(1))
}

func TestBindingReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	binding := NewBinding(transport, nil)

	binding.Release(ctx, 1) // unbound: no-op
	assert.Equal(t, 0, transport.leaves)

	require.NoError(t, binding.Acquire(ctx, 1))
	binding.Release(ctx, 1)
	binding.Release(ctx, 1)
	assert.Equal(t, 1, transport.leaves)
	assert.False(t, binding.IsBound(1))
}

func TestBindingReleaseClearsOnLeaveFailure(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	binding := NewBinding(transport, nil)

	require.NoError(t, binding.Acquire(ctx, 1))
	transport.leaveErr = errors.New("timeout")
	binding.Release(ctx, 1)

	assert.False(t, binding.IsBound(1), "binding cleared despite leave failure")
}

func TestBindingSweepInactive(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	binding := NewBinding(transport, nil)

	require.NoError(t, binding.Acquire(ctx, 1))
	require.NoError(t, binding.Acquire(ctx, 2))

	// Chat 2's call died out of band.
	transport.mu.Lock()
	delete(transport.alive, 2)
	transport.mu.Unlock()

	released := binding.SweepInactive(ctx)
	assert.Equal(t, []int64{2}, released)
	assert.True(t, binding.IsBound(1))
	assert.False(t, binding.IsBound(2))
}
