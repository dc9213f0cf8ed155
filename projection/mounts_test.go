package projection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"workhard-dashboard/bus"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMounts(ttl time.Duration, max int) (*Mounts[*Scope], *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := NewMounts[*Scope](ttl, max)
	m.now = c.now
	return m, c
}

func TestAcquireReusesMountedScope(t *testing.T) {
	m, _ := newTestMounts(time.Minute, 10)
	b := bus.New()
	mounts := 0
	mount := func() (*Scope, error) {
		mounts++
		return Mount(b, alice, "c"), nil
	}

	s1, err := m.Acquire("alice", mount)
	require.NoError(t, err)
	s2, err := m.Acquire("alice", mount)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, mounts)

	_, err = m.Acquire("bob", func() (*Scope, error) { return nil, errors.New("no wallet") })
	require.Error(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestExpiredScopeIsClosedAndRemounted(t *testing.T) {
	m, c := newTestMounts(time.Minute, 10)
	b := bus.New()
	mount := func() (*Scope, error) { return Mount(b, alice, "c"), nil }

	s1, err := m.Acquire("alice", mount)
	require.NoError(t, err)
	c.t = c.t.Add(2 * time.Minute)

	s2, err := m.Acquire("alice", mount)
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.True(t, s1.Closed())

	c.t = c.t.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.True(t, s2.Closed())
	assert.Equal(t, 0, m.Len())
}

func TestMaxSizeEvictsLeastRecentlyUsed(t *testing.T) {
	m, c := newTestMounts(time.Hour, 2)
	b := bus.New()
	scopes := map[string]*Scope{}
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		s, err := m.Acquire(key, func() (*Scope, error) { return Mount(b, alice, key), nil })
		require.NoError(t, err)
		scopes[key] = s
		c.t = c.t.Add(time.Second)
	}

	assert.Equal(t, 2, m.Len())
	assert.True(t, scopes["k0"].Closed())
	assert.False(t, scopes["k2"].Closed())

	seen := map[string]bool{}
	m.Range(func(key string, _ *Scope) { seen[key] = true })
	assert.Equal(t, map[string]bool{"k1": true, "k2": true}, seen)
}

func TestReleaseAndRunClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewMounts[*Scope](10*time.Millisecond, 10)
	b := bus.New()
	s, err := m.Acquire("a", func() (*Scope, error) { return Mount(b, alice, "c"), nil })
	require.NoError(t, err)
	m.Release("a")
	assert.True(t, s.Closed())

	s, err = m.Acquire("b", func() (*Scope, error) { return Mount(b, alice, "c"), nil })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	require.Eventually(t, s.Closed, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 0, m.Len())
}
