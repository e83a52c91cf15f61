package population

import (
	"context"
	"sync"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
)

// LocalLocker serialises writers of the same bucket inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[models.BucketKey]chan struct{}
}

var _ drepo.BucketLocker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[models.BucketKey]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key models.BucketKey) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
