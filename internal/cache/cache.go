// Package cache persists the last successful dashboard response per page.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/store"
)

// Key is the cache entry key inside a page namespace. The physical key is
// "<page>_data", which the bolt backend routes to its cache bucket.
const Key = "data"

// Page reads and writes one page's CachedResponse.
type Page struct {
	kv   store.KV
	page string
	now  func() time.Time
}

// New returns a Page cache over kv. kv must already be namespaced to page.
func New(kv store.KV, page string) *Page {
	return &Page{kv: kv, page: page, now: time.Now}
}

// Load returns the cached response. A missing or corrupt entry is a miss.
func (p *Page) Load() (*model.CachedResponse, bool, error) {
	raw, ok, err := p.kv.Get(Key)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s cache: %w", p.page, err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	var cr model.CachedResponse
	if err := json.Unmarshal([]byte(raw), &cr); err != nil {
		slog.Debug("discarding corrupt cache entry", "page", p.page, "err", err)
		return nil, false, nil
	}
	return &cr, true, nil
}

// Save overwrites the cached response with d, stamped with the current time.
func (p *Page) Save(filterKey string, d *model.Dashboard) error {
	if d == nil {
		return fmt.Errorf("caching %s: nil dashboard", p.page)
	}
	cr := model.CachedResponse{
		Page:      p.page,
		Filter:    filterKey,
		FetchedAt: p.now().UTC(),
		Dashboard: *d,
	}
	data, err := json.Marshal(cr)
	if err != nil {
		return fmt.Errorf("encoding %s cache: %w", p.page, err)
	}
	if err := p.kv.Put(Key, string(data)); err != nil {
		return fmt.Errorf("writing %s cache: %w", p.page, err)
	}
	return nil
}

// Clear removes the cached response.
func (p *Page) Clear() error {
	if err := p.kv.Delete(Key); err != nil {
		return fmt.Errorf("clearing %s cache: %w", p.page, err)
	}
	return nil
}

// Age returns how long ago cr was fetched.
func Age(cr *model.CachedResponse, now time.Time) time.Duration {
	if cr == nil || cr.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(cr.FetchedAt)
}
