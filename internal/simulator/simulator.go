// Package simulator plays scripted synthetic event sequences onto the
// fan-out so a widget can be tried without a live upstream event.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/internal/domain/runguard"
	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
	"github.com/okian/twitch-sources/pkg/random"
)

const runIDLength = 10

// Publisher is the fan-out the scripts emit onto.
type Publisher interface {
	Publish(ctx context.Context, owner, topic string, payload []byte) (int, error)
}

// script plays one widget's sequence.
type script func(ctx context.Context, r *run) error

var scripts = map[string]script{
	eventsub.TopicPredictions: predictionsScript,
	eventsub.TopicHypeTrain:   hypeTrainScript,
}

// Widgets lists the widgets that have a script.
func Widgets() []string {
	out := make([]string, 0, len(scripts))
	for w := range scripts {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Simulator starts at most one run per (owner, widget) at a time.
type Simulator struct {
	publisher Publisher
	guard     runguard.Guard
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	logger    logger.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Simulator. Runs outlive the request that started them and
// end early only on Stop.
func New(p Publisher, g runguard.Guard, opts ...Option) *Simulator {
	root, cancel := context.WithCancel(context.Background())
	s := &Simulator{
		publisher: p,
		guard:     g,
		now:       time.Now,
		sleep:     sleepCtx,
		logger:    logger.Named("simulator"),
		root:      root,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start spawns a run of widget for owner. It returns ErrUnknownWidget for a
// widget without a script and ErrAlreadyRunning while a run for the same
// (owner, widget) is in flight.
func (s *Simulator) Start(ctx context.Context, owner, widget string) error {
	sc, ok := scripts[widget]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWidget, widget)
	}
	if s.root.Err() != nil {
		return ErrStopped
	}

	key := runguard.TestRunKey(owner, widget)
	if err := s.guard.Acquire(ctx, key); err != nil {
		metrics.RecordSimulatorRun(widget, "conflict")
		if errors.Is(err, runguard.ErrHeld) {
			return fmt.Errorf("%w: %w", ErrAlreadyRunning, err)
		}
		return err
	}
	metrics.UpdateSimulatorActive(int(s.guard.Size()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.guard.Release(context.Background(), key)
			metrics.UpdateSimulatorActive(int(s.guard.Size()))
		}()

		r := &run{sim: s, owner: owner, topic: widget}
		err := r.init()
		if err == nil {
			err = sc(s.root, r)
		}
		if err != nil {
			metrics.RecordSimulatorRun(widget, "error")
			s.logger.Warn(s.root, "test run aborted",
				logger.String("owner", owner),
				logger.String("widget", widget),
				logger.Error(err))
			return
		}
		metrics.RecordSimulatorRun(widget, "ok")
		s.logger.Info(s.root, "test run finished",
			logger.String("owner", owner),
			logger.String("widget", widget),
			logger.String("run_id", r.id))
	}()

	s.logger.Info(ctx, "test run started",
		logger.String("owner", owner),
		logger.String("widget", widget))
	return nil
}

// Running reports whether a run for (owner, widget) is in flight.
func (s *Simulator) Running(ctx context.Context, owner, widget string) bool {
	return s.guard.Held(ctx, runguard.TestRunKey(owner, widget))
}

// Wait blocks until every started run has ended.
func (s *Simulator) Wait() { s.wg.Wait() }

// Stop aborts in-flight runs and waits for them to release their keys.
func (s *Simulator) Stop() {
	s.cancel()
	s.wg.Wait()
}

// run is the state of one scripted sequence.
type run struct {
	sim   *Simulator
	owner string
	topic string
	id    string
	start time.Time
}

func (r *run) init() error {
	id, err := random.Alphanumeric(runIDLength)
	if err != nil {
		return err
	}
	r.id = id
	r.start = r.sim.now()
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// emit wraps ev and publishes it on the run's channel.
func (r *run) emit(ctx context.Context, t eventsub.SubType, ev eventsub.Event) error {
	env, err := eventsub.NewEnvelope(t, stamp(r.sim.now()), ev)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = r.sim.publisher.Publish(ctx, r.owner, r.topic, payload)
	return err
}

func (r *run) wait(ctx context.Context, d time.Duration) error {
	return r.sim.sleep(ctx, d)
}

func (r *run) waitUntil(ctx context.Context, at time.Time) error {
	return r.sim.sleep(ctx, at.Sub(r.sim.now()))
}

func (r *run) broadcaster() eventsub.Broadcaster {
	return eventsub.Broadcaster{
		BroadcasterUserID:    r.owner,
		BroadcasterUserLogin: "cool_user",
		BroadcasterUserName:  "Cool_User",
	}
}
