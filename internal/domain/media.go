package domain

import "time"

// MediaPayload is the result of resolving an asset: DecodedImage,
// PlayableVideo or Failed.
type MediaPayload interface {
	isMediaPayload()
}

// DecodedImage holds encoded image bytes ready for display
type DecodedImage struct {
	Bytes  []byte
	Width  int
	Height int
}

// PlayableVideo wraps a provider handle that has reached "container ready"
type PlayableVideo struct {
	Handle VideoHandle
}

// Failed reports why an asset could not be resolved
type Failed struct {
	Reason error
}

func (DecodedImage) isMediaPayload()  {}
func (PlayableVideo) isMediaPayload() {}
func (Failed) isMediaPayload()        {}

// Error implements the error interface
func (f Failed) Error() string {
	if f.Reason == nil {
		return "failed"
	}
	return f.Reason.Error()
}

// Unwrap exposes the failure reason to errors.Is
func (f Failed) Unwrap() error { return f.Reason }

// VideoHandle is an opaque playable video. The provider returns it once the
// container is ready; Ready is closed when the first frame is available.
type VideoHandle interface {
	// Location is a provider-specific reference a player can open
	Location() string

	// Duration returns the container's reported runtime
	Duration() time.Duration

	// Ready is closed when playback can start
	Ready() <-chan struct{}
}
