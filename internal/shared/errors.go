package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Catalog request classification. The resilient client maps HTTP
	// statuses and transport failures onto these sentinels; everything
	// downstream matches with errors.Is.
	ErrTransient   = fmt.Errorf("transient network failure")
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrBadRequest  = fmt.Errorf("bad request")
	ErrForbidden   = fmt.Errorf("forbidden")
	ErrNotFound    = fmt.Errorf("not found")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrAuthExpired    = fmt.Errorf("access token expired")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// Persistence errors. ErrStorageUnavailable covers throttling,
	// connectivity, and conditional-check failures; a missing item is a
	// valid empty result and never maps here.
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")

	// Playback errors
	ErrNoActiveSession = fmt.Errorf("no active playback session")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
