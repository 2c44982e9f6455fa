package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"auth", fmt.Errorf("load decks: %w", ErrAuthenticationRequired), KindAuthenticationRequired},
		{"offline", ErrOfflineUnavailable, KindOfflineUnavailable},
		{"transient", Transient(errors.New("dial tcp: connection refused")), KindNetworkTransient},
		{"remote 404", &RemoteError{Code: 404}, KindRemoteRejected},
		{"wrapped remote 500", fmt.Errorf("fetch: %w", &RemoteError{Code: 503}), KindRemoteRejected},
		{"local limit", &LimitError{Used: 10, Limit: 10, HoursUntilReset: 3}, KindRemoteRejected},
		{"corrupt", fmt.Errorf("quiz 4: %w", ErrCacheCorrupt), KindCacheCorrupt},
		{"sync item", ErrSyncItemFailed, KindSyncItemFailed},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRemoteErrorStatusMapping(t *testing.T) {
	testCases := []struct {
		code   int
		target error
	}{
		{401, ErrInvalidCredentials},
		{404, ErrNotFound},
		{429, ErrQuotaExceeded},
		{500, ErrServer},
		{502, ErrServer},
	}

	for _, tc := range testCases {
		err := fmt.Errorf("wrapped: %w", &RemoteError{Code: tc.code})
		if !errors.Is(err, tc.target) {
			t.Errorf("status %d should match %v", tc.code, tc.target)
		}
	}

	if errors.Is(&RemoteError{Code: 400}, ErrServer) {
		t.Error("400 should not match ErrServer")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Transient(errors.New("timeout"))) {
		t.Error("expected transient errors to be retryable")
	}
	if !Retryable(&RemoteError{Code: 500}) {
		t.Error("expected 5xx to be retryable")
	}
	if Retryable(&RemoteError{Code: 429}) {
		t.Error("expected 429 not to be retryable")
	}
	if Retryable(ErrAuthenticationRequired) {
		t.Error("expected auth errors not to be retryable")
	}
}

func TestLimitErrorMatchesQuotaExceeded(t *testing.T) {
	err := fmt.Errorf("upload: %w", &LimitError{Used: 5, Limit: 5, HoursUntilReset: 7})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatal("expected LimitError to match ErrQuotaExceeded")
	}
	var limit *LimitError
	if !errors.As(err, &limit) || limit.HoursUntilReset != 7 {
		t.Errorf("expected HoursUntilReset 7, got %+v", limit)
	}
}
