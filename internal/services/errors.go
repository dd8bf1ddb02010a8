package services

import "errors"

// Health check errors
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrLakeUnavailable  = errors.New("lake root not accessible")
)
