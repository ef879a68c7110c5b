//go:build !unix

package cache

import (
	"context"
	"sync"
)

// There is no flock(2), so cache files are locked only within the current process.
var (
	locksMu sync.Mutex
	locks   = make(map[string]chan struct{})
)

func lockFile(ctx context.Context, path string) (release func() error, err error) {
	locksMu.Lock()
	ch, ok := locks[path]
	if !ok {
		ch = make(chan struct{}, 1)
		locks[path] = ch
	}
	locksMu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() error {
		<-ch
		return nil
	}, nil
}

func syncDir(string) error {
	return nil
}

func isCrossDeviceError(error) bool {
	return false
}
