package domain

import "errors"

var (
	// ErrStorageUnavailable is wrapped by every backing-medium failure
	ErrStorageUnavailable = errors.New("visitor storage unavailable")

	// ErrRecordNotFound is returned by repositories when nothing has been persisted yet
	ErrRecordNotFound = errors.New("visitor record not found")

	// ErrUnknownLabel is returned when a classifier label cannot be decoded to a crop
	ErrUnknownLabel = errors.New("unknown crop label")

	// ErrModelLoad is wrapped when the classifier artifact is missing or corrupt
	ErrModelLoad = errors.New("classifier model could not be loaded")
)
