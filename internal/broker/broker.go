package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoders for DecodeConfig
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"  // register decoders for DecodeConfig
	"log/slog"
	"sync"

	"github.com/mmcdole/glimpse/internal/domain"
)

// DefaultWorkers bounds concurrent provider requests
const DefaultWorkers = 4

// Broker resolves assets to media with one "current" slot and one prefetch
// slot. Both slots are private to the broker.
type Broker struct {
	resolver domain.MediaResolver
	logger   *slog.Logger
	sem      chan struct{}

	mu       sync.Mutex
	current  *Request
	prefetch *prefetchEntry
}

type prefetchEntry struct {
	token *Token
	job   *job
}

// New creates a broker that runs at most workers provider calls at once.
func New(resolver domain.MediaResolver, workers int, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Broker{
		resolver: resolver,
		logger:   logger,
		sem:      make(chan struct{}, workers),
	}
}

// Fetch makes asset the current request. A current request for a different
// asset is cancelled first. A live or successful request for the same asset is
// returned as is, and a matching prefetch is consumed instead of starting a
// second provider call.
func (b *Broker) Fetch(asset domain.Asset) *Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.current; cur != nil && cur.Asset.Same(asset) && !cur.Token.Cancelled() {
		if cur.Payload() == nil || cur.succeeded() {
			return cur
		}
	}
	if cur := b.current; cur != nil && !cur.Asset.Same(asset) {
		b.cancelRequestLocked(cur)
	}
	b.current = nil

	var j *job
	if pf := b.prefetch; pf != nil {
		if pf.token.assetID == asset.ID && !pf.job.failed() {
			j = pf.job
			b.logger.Debug("consumed prefetch", "assetID", asset.ID)
		} else {
			b.cancelPrefetchLocked()
		}
		b.prefetch = nil
	}
	if j == nil {
		j = b.startJob(asset)
	}

	req := newRequest(asset, j)
	b.current = req
	go b.deliver(req)

	b.logger.Debug("fetch", "assetID", asset.ID, "token", req.Token.ID())
	return req
}

// deliver resolves req from its job unless it was cancelled first
func (b *Broker) deliver(req *Request) {
	select {
	case <-req.job.done:
	case <-req.done:
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.Token.Cancelled() {
		return
	}
	req.resolve(req.job.payload)
}

// Prefetch warms the single prefetch slot with asset. It never touches the
// current request and replaces a prefetch for any other asset.
func (b *Broker) Prefetch(asset domain.Asset) *Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.current; cur != nil && cur.Asset.Same(asset) && !cur.Token.Cancelled() {
		return nil
	}
	if pf := b.prefetch; pf != nil {
		if pf.token.assetID == asset.ID && !pf.job.failed() {
			return pf.token
		}
		b.cancelPrefetchLocked()
	}

	pf := &prefetchEntry{token: newToken(asset.ID), job: b.startJob(asset)}
	b.prefetch = pf
	b.logger.Debug("prefetch", "assetID", asset.ID, "token", pf.token.ID())
	return pf.token
}

// Cancel cancels the request or prefetch holding token.
func (b *Broker) Cancel(token *Token) {
	if token == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.current; cur != nil && cur.Token == token {
		b.cancelRequestLocked(cur)
		b.current = nil
		return
	}
	if pf := b.prefetch; pf != nil && pf.token == token {
		b.cancelPrefetchLocked()
		return
	}
	token.cancelled.Store(true)
}

// CancelAll cancels the current and prefetch requests. Safe with nothing
// outstanding.
func (b *Broker) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.cancelRequestLocked(b.current)
		b.current = nil
	}
	b.cancelPrefetchLocked()
}

// cancelRequestLocked resolves req with Failed(cancelled). The provider call
// is cancelled too but its result, if any, is never surfaced.
func (b *Broker) cancelRequestLocked(req *Request) {
	if req.Token.cancelled.Swap(true) {
		return
	}
	if req.resolve(domain.Failed{Reason: domain.ErrCancelled}) {
		b.logger.Debug("cancelled request", "assetID", req.Asset.ID, "token", req.Token.ID())
	}
	if !req.job.finished() {
		req.job.cancel()
	}
}

func (b *Broker) cancelPrefetchLocked() {
	pf := b.prefetch
	if pf == nil {
		return
	}
	pf.token.cancelled.Store(true)
	pf.job.cancel()
	b.prefetch = nil
	b.logger.Debug("discarded prefetch", "assetID", pf.token.assetID)
}

// Outstanding returns the number of unresolved, non-cancelled requests:
// at most one current request plus one prefetch.
func (b *Broker) Outstanding() (current, prefetch int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && !b.current.Token.Cancelled() && b.current.Payload() == nil {
		current = 1
	}
	if b.prefetch != nil && !b.prefetch.job.finished() {
		prefetch = 1
	}
	return current, prefetch
}

// Thumbnail resolves a grid thumbnail on the worker pool without touching
// either slot.
func (b *Broker) Thumbnail(ctx context.Context, asset domain.Asset, width, height int) ([]byte, error) {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-b.sem }()

	data, err := b.resolver.Thumbnail(ctx, asset, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: thumbnail %s: %w", domain.ErrDecodeFailed, asset.ID, err)
	}
	return data, nil
}

// === Worker pool ===

func (b *Broker) startJob(asset domain.Asset) *job {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{asset: asset, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		j.payload = b.run(ctx, asset)
	}()
	return j
}

func (b *Broker) run(ctx context.Context, asset domain.Asset) domain.MediaPayload {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.Failed{Reason: domain.ErrCancelled}
	}
	defer func() { <-b.sem }()

	if asset.IsVideo() {
		handle, err := b.resolver.ResolveVideo(ctx, asset)
		if err != nil {
			return b.failure(ctx, asset, err)
		}
		return domain.PlayableVideo{Handle: handle}
	}

	data, err := b.resolver.ResolveImage(ctx, asset)
	if err != nil {
		return b.failure(ctx, asset, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return b.failure(ctx, asset, err)
	}
	return domain.DecodedImage{Bytes: data, Width: cfg.Width, Height: cfg.Height}
}

func (b *Broker) failure(ctx context.Context, asset domain.Asset, err error) domain.MediaPayload {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return domain.Failed{Reason: domain.ErrCancelled}
	}
	b.logger.Warn("failed to resolve asset", "assetID", asset.ID, "kind", asset.Kind.String(), "error", err)
	return domain.Failed{Reason: fmt.Errorf("%w: %s: %w", domain.ErrDecodeFailed, asset.ID, err)}
}
