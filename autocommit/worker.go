// Package autocommit periodically flushes a buffer in the background.
package autocommit

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/worker/v4/catacomb"
)

// DefaultInterval is the pause between two commits.
const DefaultInterval = time.Second

// Committer flushes pending documents. *bulk.Buffer satisfies it; its lock
// serializes the tick with upsert-triggered flushes.
type Committer interface {
	Commit(ctx context.Context) (int, error)
}

// Logger is the subset of loggo.Logger the worker uses.
type Logger interface {
	Errorf(string, ...interface{})
	Debugf(string, ...interface{})
}

// Config encapsulates the configuration options for the worker.
type Config struct {
	Committer Committer
	Clock     clock.Clock
	Interval  time.Duration
	Logger    Logger
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Committer == nil {
		return errors.NotValidf("missing Committer")
	}
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	if c.Interval <= 0 {
		return errors.NotValidf("auto commit interval %v", c.Interval)
	}
	if c.Logger == nil {
		return errors.NotValidf("missing Logger")
	}
	return nil
}

// Worker commits on every interval until killed.
type Worker struct {
	cfg      Config
	catacomb catacomb.Catacomb
}

// NewWorker starts an auto-commit worker.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Logger == nil {
		cfg.Logger = loggo.GetLogger("searchsync.autocommit")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{cfg: cfg}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

func (w *Worker) loop() error {
	ctx := w.catacomb.Context(context.Background())
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-w.cfg.Clock.After(w.cfg.Interval):
			n, err := w.cfg.Committer.Commit(ctx)
			if err != nil {
				// The buffer keeps the batch; the next tick tries again.
				w.cfg.Logger.Errorf("auto commit failed: %v", err)
				continue
			}
			if n > 0 {
				w.cfg.Logger.Debugf("auto commit flushed %d documents", n)
			}
		}
	}
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}
