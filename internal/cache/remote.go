package cache

import (
	"context"
	"errors"
	"time"
)

// ErrRemoteMiss is returned by RemoteBackend.Get when the key is absent.
var ErrRemoteMiss = errors.New("remote cache: miss")

// RemoteBackend is the shared tier. Any error other than ErrRemoteMiss is
// treated as "remote unavailable for this call".
type RemoteBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// remoteOutcome tags the result of a remote read so the fallback branch in
// TieredCache.Get is explicit.
type remoteOutcome int

const (
	remoteHit remoteOutcome = iota
	remoteMiss
	remoteUnavailable
)

func (o remoteOutcome) String() string {
	switch o {
	case remoteHit:
		return "hit"
	case remoteMiss:
		return "miss"
	default:
		return "unavailable"
	}
}

type remoteResult struct {
	outcome remoteOutcome
	value   any
	err     error
}
