package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mmcdole/glimpse/internal/domain"
)

// Token is the cancellation handle of one fetch or prefetch.
type Token struct {
	id        uuid.UUID
	assetID   string
	cancelled atomic.Bool
}

func newToken(assetID string) *Token {
	return &Token{id: uuid.New(), assetID: assetID}
}

// ID returns the token's unique identifier
func (t *Token) ID() string { return t.id.String() }

// AssetID returns the asset the token was issued for
func (t *Token) AssetID() string { return t.assetID }

// Cancelled reports whether the request was cancelled or superseded
func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Request is the promise side of a fetch. It resolves exactly once.
type Request struct {
	Token *Token
	Asset domain.Asset

	job     *job
	done    chan struct{}
	once    sync.Once
	payload domain.MediaPayload
}

func newRequest(asset domain.Asset, j *job) *Request {
	return &Request{
		Token: newToken(asset.ID),
		Asset: asset,
		job:   j,
		done:  make(chan struct{}),
	}
}

// Done is closed once the request resolved
func (r *Request) Done() <-chan struct{} { return r.done }

// Payload returns the resolved payload, or nil while pending
func (r *Request) Payload() domain.MediaPayload {
	select {
	case <-r.done:
		return r.payload
	default:
		return nil
	}
}

// Wait blocks until the request resolves or ctx is done
func (r *Request) Wait(ctx context.Context) (domain.MediaPayload, error) {
	select {
	case <-r.done:
		return r.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve settles the promise; later calls are ignored
func (r *Request) resolve(p domain.MediaPayload) bool {
	resolved := false
	r.once.Do(func() {
		r.payload = p
		close(r.done)
		resolved = true
	})
	return resolved
}

// succeeded reports whether the request resolved with media
func (r *Request) succeeded() bool {
	p := r.Payload()
	if p == nil {
		return false
	}
	_, failed := p.(domain.Failed)
	return !failed
}

// job is one provider round trip. A job belongs to exactly one slot at a
// time; a consumed prefetch hands its job to the current request.
type job struct {
	asset   domain.Asset
	cancel  context.CancelFunc
	done    chan struct{}
	payload domain.MediaPayload
}

func (j *job) finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *job) failed() bool {
	if !j.finished() {
		return false
	}
	_, failed := j.payload.(domain.Failed)
	return failed
}
