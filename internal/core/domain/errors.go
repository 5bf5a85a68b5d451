package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrGeocodeUnavailable  = errors.New("geocode unavailable")
	ErrRemoteWrite         = errors.New("remote write failed")
	ErrSourceRead          = errors.New("photo source read failed")
	ErrUpload              = errors.New("photo upload failed")
	ErrMarkerNotFound      = errors.New("marker not found")
	ErrTrackerRunning      = errors.New("location tracker already running")
	ErrInvalidCoordinate   = errors.New("invalid coordinate")
)

// RemoteWriteError is returned when the remote document store rejects a write.
type RemoteWriteError struct {
	Op    string
	Cause error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRemoteWrite, e.Op, e.Cause)
}

func (e *RemoteWriteError) Unwrap() []error { return []error{ErrRemoteWrite, e.Cause} }

// SourceReadError is returned when local photo bytes cannot be read.
type SourceReadError struct {
	Ref   string
	Cause error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceRead, e.Ref, e.Cause)
}

func (e *SourceReadError) Unwrap() []error { return []error{ErrSourceRead, e.Cause} }

// UploadError is returned when the blob store rejects an upload.
type UploadError struct {
	Key   string
	Cause error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUpload, e.Key, e.Cause)
}

func (e *UploadError) Unwrap() []error { return []error{ErrUpload, e.Cause} }
