// Package apperr defines the error taxonomy shared by the cache, sync and
// generation layers. Callers branch on Kind rather than on message text.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrOfflineUnavailable     = errors.New("content not available offline")
	ErrNetworkTransient       = errors.New("network unavailable")
	ErrCacheCorrupt           = errors.New("cached content is corrupt")
	ErrSyncItemFailed         = errors.New("sync item failed")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrQuotaExceeded      = errors.New("generation quota exceeded")
	ErrServer             = errors.New("server error")
)

// Kind is the coarse category a caller branches on.
type Kind int

const (
	KindNone Kind = iota
	KindAuthenticationRequired
	KindOfflineUnavailable
	KindNetworkTransient
	KindRemoteRejected
	KindCacheCorrupt
	KindSyncItemFailed
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthenticationRequired:
		return "authentication_required"
	case KindOfflineUnavailable:
		return "offline_unavailable"
	case KindNetworkTransient:
		return "network_transient"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindCacheCorrupt:
		return "cache_corrupt"
	case KindSyncItemFailed:
		return "sync_item_failed"
	default:
		return "unknown"
	}
}

// RemoteError is a non-2xx response from the remote service.
type RemoteError struct {
	Code int
	Body string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote rejected request: status %d", e.Code)
	}
	return fmt.Sprintf("remote rejected request: status %d: %s", e.Code, e.Body)
}

// Is maps the status code onto the status sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return e.Code == http.StatusUnauthorized
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrQuotaExceeded:
		return e.Code == http.StatusTooManyRequests
	case ErrServer:
		return e.Code >= 500
	}
	return false
}

// LimitError is the local rejection issued before a generation-consuming
// call when the last known quota is exhausted.
type LimitError struct {
	Used            int
	Limit           int
	HoursUntilReset int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily generation limit reached (%d/%d), resets in %dh", e.Used, e.Limit, e.HoursUntilReset)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Transient wraps a transport failure as ErrNetworkTransient.
func Transient(err error) error {
	return fmt.Errorf("%w: %v", ErrNetworkTransient, err)
}

// KindOf classifies err.
func KindOf(err error) Kind {
	var remote *RemoteError
	var limit *LimitError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthenticationRequired):
		return KindAuthenticationRequired
	case errors.Is(err, ErrOfflineUnavailable):
		return KindOfflineUnavailable
	case errors.Is(err, ErrCacheCorrupt):
		return KindCacheCorrupt
	case errors.Is(err, ErrSyncItemFailed):
		return KindSyncItemFailed
	case errors.As(err, &remote), errors.As(err, &limit),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrServer):
		return KindRemoteRejected
	case errors.Is(err, ErrNetworkTransient), errors.Is(err, context.DeadlineExceeded):
		return KindNetworkTransient
	default:
		return KindUnknown
	}
}

// Retryable reports whether repeating the same request may succeed.
func Retryable(err error) bool {
	if errors.Is(err, ErrNetworkTransient) {
		return true
	}
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code >= 500
}
