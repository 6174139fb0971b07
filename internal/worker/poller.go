package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// claimFunc pulls and processes at most one job. It reports whether a job
// was claimed so the poller can drain a backlog without waiting out the
// poll interval between jobs.
type claimFunc func(ctx context.Context) (claimed bool, err error)

// Poller drives a queue worker: it calls claim in a loop, draining the
// queue while jobs are available and sleeping the poll interval when it is
// empty. Stop waits for the in-flight job to finish.
type Poller struct {
	name         string
	pollInterval time.Duration
	claim        claimFunc
	logger       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller around a claim function.
func NewPoller(name string, pollInterval time.Duration, claim claimFunc, logger zerolog.Logger) *Poller {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Poller{
		name:         name,
		pollInterval: pollInterval,
		claim:        claim,
		logger:       logger.With().Str("component", name).Logger(),
	}
}

// Start launches the poll loop.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Info().Dur("poll_interval", p.pollInterval).Msg("Worker started")
		p.run(ctx)
	}()
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before going back to sleep.
		for {
			if ctx.Err() != nil {
				return
			}
			claimed, err := p.claim(ctx)
			if err != nil {
				p.logger.Error().Err(err).Msg("Claim failed")
				break
			}
			if !claimed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the loop and waits for the in-flight job to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Worker stopped")
}
