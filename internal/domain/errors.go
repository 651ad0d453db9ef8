package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrEnumerationFailed indicates album or asset listing failed
	ErrEnumerationFailed = errors.New("enumeration failed")

	// ErrDecodeFailed indicates image or video resolution failed
	ErrDecodeFailed = errors.New("decode failed")

	// ErrCancelled indicates a request was superseded or cancelled
	ErrCancelled = errors.New("request cancelled")

	// ErrPersistenceFailed indicates a settings write failed
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrAlbumNotFound indicates the requested album does not exist
	ErrAlbumNotFound = errors.New("album not found")

	// ErrAssetNotFound indicates the requested asset is not in the sequence
	ErrAssetNotFound = errors.New("asset not found")
)
