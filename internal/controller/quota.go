package controller

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/store"
)

// PointsKey is the store key of the shared insight quota.
const PointsKey = "_points"

// DefaultPoints is the quota granted when nothing is persisted.
const DefaultPoints = 10

// Quota is the insight budget shared by every page. It is safe for
// concurrent use.
type Quota struct {
	mu     sync.Mutex
	kv     store.KV
	points int
}

// NewQuota loads the persisted balance, or starts at initial.
func NewQuota(kv store.KV, initial int) (*Quota, error) {
	q := &Quota{kv: kv, points: initial}
	raw, ok, err := kv.Get(PointsKey)
	if err != nil {
		return nil, fmt.Errorf("loading insight points: %w", err)
	}
	if ok {
		if n, err := strconv.Atoi(raw); err == nil {
			q.points = n
		}
	}
	return q, nil
}

// Points returns the remaining balance.
func (q *Quota) Points() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.points
}

// Available reports whether at least one point remains.
func (q *Quota) Available() bool {
	return q.Points() > 0
}

// Reserve takes one point before an insight is requested, or refuses with
// ErrQuotaExhausted. The check and the deduction happen under one lock so
// concurrent controllers sharing the quota cannot overdraw it.
func (q *Quota) Reserve() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.points <= 0 {
		return model.ErrQuotaExhausted
	}
	return q.setLocked(q.points - 1)
}

// Refund returns a reserved point whose insight failed or was discarded.
func (q *Quota) Refund() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.setLocked(q.points + 1)
}

// Set replaces the balance.
func (q *Quota) Set(n int) error {
	if n < 0 {
		return fmt.Errorf("insight points must be >= 0, got %d", n)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.setLocked(n)
}

func (q *Quota) setLocked(n int) error {
	if err := q.kv.Put(PointsKey, strconv.Itoa(n)); err != nil {
		return fmt.Errorf("saving insight points: %w", err)
	}
	q.points = n
	return nil
}
