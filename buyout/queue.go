package buyout

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"golang.org/x/sync/semaphore"
)

// Queue serializes validation and submission per vault within one process.
// It does not protect against other processes racing on the same vault.
type Queue struct {
	mu    sync.Mutex
	slots map[common.Address]*semaphore.Weighted
}

func NewQueue() *Queue {
	return &Queue{slots: make(map[common.Address]*semaphore.Weighted)}
}

func (q *Queue) slot(vault common.Address) *semaphore.Weighted {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.slots[vault]
	if !ok {
		s = semaphore.NewWeighted(1)
		q.slots[vault] = s
	}
	return s
}

// Acquire waits for the vault's turn. The returned func releases it.
func (q *Queue) Acquire(ctx context.Context, vault common.Address) (func(), error) {
	s := q.slot(vault)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, &sdkerr.Error{Kind: sdkerr.KindTimeout, Op: "buyout.queue", Msg: "queue wait cancelled", Err: err}
	}
	return func() { s.Release(1) }, nil
}
