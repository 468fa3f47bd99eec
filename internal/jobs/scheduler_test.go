package jobs

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls  int
	purged int64
	err    error
}

func (f *fakePurger) DeleteExpired(ctx context.Context) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.purged, nil
}

func TestPurgeSessions(t *testing.T) {
	purger := &fakePurger{purged: 3}
	s := NewScheduler(purger, zerolog.Nop())

	s.purgeSessions()
	assert.Equal(t, 1, purger.calls)
}

func TestPurgeSessionsSurvivesError(t *testing.T) {
	purger := &fakePurger{err: assert.AnError}
	s := NewScheduler(purger, zerolog.Nop())

	// An error is logged, not propagated; the next tick still runs.
	s.purgeSessions()
	s.purgeSessions()
	assert.Equal(t, 2, purger.calls)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(&fakePurger{}, zerolog.Nop())
	require.NoError(t, s.Start())
	s.Stop()
}
