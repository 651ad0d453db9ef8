package session

import (
	"context"
	"fmt"
	"time"
)

// Watch refreshes the catalog whenever the provider reports a library change.
// Bursts of signals within the debounce window cause a single refresh, and
// refreshes never overlap. Watch returns when ctx is done or the provider
// closes its change channel.
func (s *Session) Watch(ctx context.Context) error {
	changes, err := s.provider.Changes(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to library changes: %w", err)
	}
	s.logger.Info("watching library", "debounce", s.opts.Debounce)

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.opts.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default: // A refresh is already pending
				}
			})

		case <-fire:
			res, err := s.catalog.Refresh(ctx)
			if err != nil {
				s.logger.Error("failed to refresh after library change", "error", err)
				continue
			}
			s.logger.Debug("refreshed after library change",
				"source", res.Source.ID(), "prepended", res.Prepended, "fellBack", res.FellBack)
		}
	}
}
