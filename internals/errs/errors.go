package errs

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the auth engines. Controllers translate these
// to HTTP statuses; the audit log records Kind(err) as the failure class.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrChallengeInvalid       = errors.New("challenge missing, expired, or already used")
	ErrAttestationInvalid     = errors.New("attestation or assertion verification failed")
	ErrCounterRegression      = errors.New("authenticator counter did not increase")
	ErrInvalidCode            = errors.New("invalid verification code")
	ErrRateLimited            = errors.New("too many attempts")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrConflict               = errors.New("conflict")
	ErrNotFound               = errors.New("not found")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
)

var kinds = map[error]string{
	ErrInvalidInput:           "invalid_input",
	ErrChallengeInvalid:       "challenge_invalid",
	ErrAttestationInvalid:     "attestation_invalid",
	ErrCounterRegression:      "counter_regression",
	ErrInvalidCode:            "invalid_code",
	ErrRateLimited:            "rate_limited",
	ErrUnauthorized:           "unauthorized",
	ErrConflict:               "conflict",
	ErrNotFound:               "not_found",
	ErrTemporarilyUnavailable: "temporarily_unavailable",
}

var statuses = map[error]int{
	ErrInvalidInput:           http.StatusBadRequest,
	ErrChallengeInvalid:       http.StatusBadRequest,
	ErrAttestationInvalid:     http.StatusUnauthorized,
	ErrCounterRegression:      http.StatusUnauthorized,
	ErrInvalidCode:            http.StatusUnauthorized,
	ErrRateLimited:            http.StatusTooManyRequests,
	ErrUnauthorized:           http.StatusUnauthorized,
	ErrConflict:               http.StatusConflict,
	ErrNotFound:               http.StatusNotFound,
	ErrTemporarilyUnavailable: http.StatusServiceUnavailable,
}

// Kind returns the audit classification for err, or "internal" when err is
// not part of the taxonomy.
func Kind(err error) string {
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return "internal"
}

// Status maps err to an HTTP status code. Unknown errors become 500.
func Status(err error) int {
	for sentinel, status := range statuses {
		if errors.Is(err, sentinel) {
			return status
		}
	}
	return http.StatusInternalServerError
}
