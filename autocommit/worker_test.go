package autocommit

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type committer struct {
	calls chan struct{}
	err   error
}

func (c *committer) Commit(context.Context) (int, error) {
	c.calls <- struct{}{}
	return 1, c.err
}

func waitCommit(t *testing.T, c *committer) {
	select {
	case <-c.calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for commit")
	}
}

func TestWorkerCommitsOnInterval(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	c := &committer{calls: make(chan struct{}, 1)}
	w, err := NewWorker(Config{Committer: c, Clock: clk, Interval: time.Second})
	require.NoError(t, err)
	defer func() {
		w.Kill()
		assert.NoError(t, w.Wait())
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))
		waitCommit(t, c)
	}

	select {
	case <-c.calls:
		t.Fatalf("unexpected commit without clock advance")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWorkerSurvivesCommitErrors(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	c := &committer{calls: make(chan struct{}, 1), err: errors.New("backend down")}
	w, err := NewWorker(Config{Committer: c, Clock: clk, Interval: time.Minute, Logger: loggo.GetLogger("test")})
	require.NoError(t, err)

	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	waitCommit(t, c)
	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	waitCommit(t, c)

	w.Kill()
	assert.NoError(t, w.Wait())
}

func TestConfigValidate(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	_, err := NewWorker(Config{Clock: clk})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewWorker(Config{Committer: &committer{}})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewWorker(Config{Committer: &committer{}, Clock: clk, Interval: -time.Second})
	assert.True(t, errors.Is(err, errors.NotValid))
}
