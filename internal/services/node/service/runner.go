package service

import (
	"context"
	"errors"
	"sync"

	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/node/domain"
)

// Runner publishes the node's identity, introduces it to the bootstrap
// peer, and drives the pipeline worker and webhook flusher until ctx ends
type Runner struct {
	log  logger.Logger
	self Identity
	proc *Processor
	net  *Network
}

// NewRunner wires the node's background loop
func NewRunner(self Identity, proc *Processor, net *Network, log logger.Logger) *Runner {
	return &Runner{log: log, self: self, proc: proc, net: net}
}

// Run implements domain.RunnerPort
func (r *Runner) Run(ctx context.Context) error {
	bundle, err := r.self.Bundle()
	if err != nil {
		return err
	}
	if err := r.proc.HandleBundle(ctx, bundle, domain.SourceInternal); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.net.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("webhook flusher stopped")
		}
	}()

	if err := r.net.FirstContact(ctx); err != nil {
		r.log.Warn().Err(err).Msg("first contact failed")
	}

	err = r.proc.Run(ctx)
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
