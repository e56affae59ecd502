package replay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/twitch-sources/pkg/logger"
)

// Run replays the fixture at cfg.FixturePath against the bridge.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	fixture, err := LoadFixture(cfg.FixturePath)
	if err != nil {
		return nil, err
	}
	return Replay(ctx, cfg, fixture)
}

// Replay sends every delivery of fixture in order, honouring the delays,
// optionally streaming the watch topic meanwhile.
func Replay(ctx context.Context, cfg *Config, fixture *Fixture) (*Stats, error) {
	log := logger.Get().Named("replay")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting webhook replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("fixture", fixture.Name),
		logger.Int("deliveries", len(fixture.Deliveries)),
		logger.String("watch", cfg.WatchTopic))

	if err := checkServiceHealth(ctx, cfg); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	var (
		frames  atomic.Int64
		watchWG sync.WaitGroup
		watchCh = make(chan error, 1)
	)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if cfg.WatchTopic != "" {
		watchWG.Add(1)
		go func() {
			defer watchWG.Done()
			watchCh <- Watch(watchCtx, cfg.BaseURL, cfg.WatchTopic, cfg.WatchToken, func(msg []byte) {
				frames.Add(1)
				if cfg.Verbose {
					log.Info(ctx, "frame received", logger.String("topic", cfg.WatchTopic), logger.String("payload", string(msg)))
				}
			})
		}()
	}

	sender := NewSender(cfg.BaseURL, cfg.Secret, cfg.Timeout)
	var sendErr error
	for _, d := range fixture.Deliveries {
		if err := sleep(ctx, d.Delay); err != nil {
			sendErr = err
			break
		}
		resp, err := sender.Send(ctx, d)
		stats.Sent++
		if err != nil {
			stats.Failed++
			log.Error(ctx, "delivery failed", logger.String("name", d.Name), logger.Error(err))
			continue
		}
		want := expectedStatus(d)
		if resp.Status != want {
			stats.Mismatched++
			log.Warn(ctx, "unexpected status",
				logger.String("name", d.Name),
				logger.Int("status", resp.Status),
				logger.Int("want", want),
				logger.String("body", resp.Body))
			continue
		}
		stats.Matched++
		if cfg.Verbose {
			log.Info(ctx, "delivery accepted",
				logger.String("name", d.Name),
				logger.String("message_id", resp.MessageID),
				logger.Int("status", resp.Status))
		}
	}

	if cfg.WatchTopic != "" {
		_ = sleep(ctx, cfg.Linger)
		stopWatch()
		watchWG.Wait()
		if err := <-watchCh; err != nil {
			log.Warn(ctx, "watch ended with error", logger.Error(err))
		}
	}

	stats.Frames = int(frames.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if sendErr != nil {
		return stats, sendErr
	}
	if stats.Failed > 0 || stats.Mismatched > 0 {
		return stats, fmt.Errorf("%w: %d failed, %d mismatched", ErrUnexpected, stats.Failed, stats.Mismatched)
	}
	return stats, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// checkServiceHealth verifies the bridge is running.
func checkServiceHealth(ctx context.Context, cfg *Config) error {
	client := &http.Client{Timeout: cfg.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// displayFinalStats logs the replay summary.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.Int("sent", stats.Sent),
		logger.Int("matched", stats.Matched),
		logger.Int("mismatched", stats.Mismatched),
		logger.Int("failed", stats.Failed),
		logger.Int("frames", stats.Frames),
		logger.Duration("duration", stats.Duration))
}
