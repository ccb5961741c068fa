package api

import (
	"errors"
	"net/http"

	"dirwatch/internal/listing"
	"dirwatch/internal/watcher"
)

const (
	codeNotADirectory     = "not_a_directory"
	codeWatchLimit        = "watch_limit"
	codeRegistryClosed    = "registry_closed"
	codeWatcherRelease    = "watcher_release_failed"
	codeInvalidPath       = "invalid_path"
)

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// watchErrorCode narrows a failed watch or unwatch to a machine readable code.
// The status stays 500 for every failure, matching the plain "unable to
// watch" contract clients already rely on.
func watchErrorCode(err error) string {
	switch {
	case errors.Is(err, watcher.ErrInvalidPath):
		return codeInvalidPath
	case errors.Is(err, listing.ErrNotADirectoryOrUnreadable):
		return codeNotADirectory
	case errors.Is(err, watcher.ErrMaxWatches):
		return codeWatchLimit
	case errors.Is(err, watcher.ErrRegistryClosed):
		return codeRegistryClosed
	case errors.Is(err, watcher.ErrWatcherRelease):
		return codeWatcherRelease
	default:
		return errorCodeForStatus(http.StatusInternalServerError)
	}
}
