package tick

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"workhard-dashboard/bus"
)

type fakeHeads struct {
	mu        sync.Mutex
	height    uint64
	err       error
	timeCalls int
}

func (f *fakeHeads) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, f.err
}

func (f *fakeHeads) BlockTime(_ context.Context, height uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeCalls++
	return int64(1_000 + height*12), nil
}

func (f *fakeHeads) set(h uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height, f.err = h, err
}

func TestPollAdvancesBus(t *testing.T) {
	heads := &fakeHeads{height: 10}
	b := bus.New()
	s := New(heads, b, time.Second, zap.NewNop(), nil)

	h, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h)
	assert.Equal(t, uint64(10), b.Version())

	heads.set(0, errors.New("node down"))
	_, err = s.Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(10), b.Version())

	stats := s.Statistics()
	assert.Equal(t, int64(2), stats.Polls)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, "node down", stats.LastError)
}

func TestPollNeverMovesHeightBack(t *testing.T) {
	heads := &fakeHeads{height: 20}
	b := bus.New()
	s := New(heads, b, time.Second, zap.NewNop(), nil)

	_, err := s.Poll(context.Background())
	require.NoError(t, err)

	heads.set(17, nil)
	h, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(20), h)
	assert.Equal(t, uint64(20), s.Height())
	assert.Equal(t, uint64(20), b.Version())

	heads.set(21, nil)
	h, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(21), h)
	assert.Equal(t, uint64(21), s.Height())
}

func TestTimestampIsCached(t *testing.T) {
	heads := &fakeHeads{}
	s := New(heads, bus.New(), time.Second, zap.NewNop(), nil)

	ts, err := s.Timestamp(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1_060), ts)
	_, err = s.Timestamp(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, heads.timeCalls)

	_, err = s.Timestamp(context.Background(), 5+timeWindow+1)
	require.NoError(t, err)
	s.timesMu.Lock()
	_, kept := s.times[5]
	s.timesMu.Unlock()
	assert.False(t, kept)
}

func TestStartStopDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	heads := &fakeHeads{height: 1}
	b := bus.New()
	s := New(heads, b, 5*time.Millisecond, zap.NewNop(), nil)
	ch, cancel := b.Subscribe()
	defer cancel()

	require.NoError(t, s.Start())
	require.Error(t, s.Start())
	assert.True(t, s.IsRunning())

	select {
	case v := <-ch:
		assert.Equal(t, uint64(1), v)
	case <-time.After(time.Second):
		t.Fatal("no tick observed")
	}

	heads.set(2, nil)
	require.Eventually(t, func() bool { return b.Version() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.Error(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(&fakeHeads{height: 3}, bus.New(), 5*time.Millisecond, zap.NewNop(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(3), s.Height())
}
