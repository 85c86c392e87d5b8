// Package app wires together configuration, the backend client, the
// persistent store and the insight quota into a single Deps struct that
// commands receive at runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/derickschaefer/kpiboard/internal/client"
	"github.com/derickschaefer/kpiboard/internal/config"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// The store is opened lazily by OpenStore so commands that never touch it
// (version, config show) do not take the bbolt file lock.
type Deps struct {
	Config *config.Config
	Client *client.Client
	Pages  *controller.Registry

	KV    store.KV
	Bolt  *store.Store // set only for the bolt backend
	Quota *controller.Quota

	closers []io.Closer
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) *Deps {
	c := client.NewClient(client.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		RatePerSec: cfg.Rate,
		Casing:     filter.Casing(cfg.FilterCasing),
		Debug:      cfg.Debug,
	})
	return &Deps{
		Config: cfg,
		Client: c,
		Pages:  controller.NewRegistry(cfg.Endpoints),
	}
}

// OpenStore opens the configured backend and loads the insight quota.
// Calling it again is a no-op.
func (d *Deps) OpenStore() error {
	if d.KV != nil {
		return nil
	}
	switch d.Config.Store {
	case "", "bolt":
		s, err := store.Open(d.Config.DBPath)
		if err != nil {
			return err
		}
		d.KV, d.Bolt = s, s
		d.closers = append(d.closers, s)
	case "sqlite":
		s, err := store.OpenSQLite(d.Config.DBPath)
		if err != nil {
			return err
		}
		d.KV = s
		d.closers = append(d.closers, s)
	case "redis":
		r, err := store.OpenRedis(d.Config.RedisAddr, d.Config.Timeout)
		if err != nil {
			return err
		}
		d.KV = r
		d.closers = append(d.closers, r)
	case "memory":
		d.KV = store.NewMemory()
	default:
		return fmt.Errorf("unknown store %q", d.Config.Store)
	}

	q, err := controller.NewQuota(d.KV, d.Config.InsightPoints)
	if err != nil {
		return err
	}
	d.Quota = q
	return nil
}

// RequireBolt returns the bbolt store, for maintenance commands that only
// make sense against a local database file.
func (d *Deps) RequireBolt() (*store.Store, error) {
	if err := d.OpenStore(); err != nil {
		return nil, err
	}
	if d.Bolt == nil {
		return nil, fmt.Errorf("this command needs the bolt store (configured: %s)", d.Config.Store)
	}
	return d.Bolt, nil
}

// Controller returns a controller for the named page over the shared store
// and quota.
func (d *Deps) Controller(ctx context.Context, page string) (*controller.Controller, error) {
	p, err := d.Pages.Lookup(page)
	if err != nil {
		return nil, err
	}
	if err := d.OpenStore(); err != nil {
		return nil, err
	}
	return controller.New(ctx, controller.Options{
		Page:    p,
		Backend: d.Client,
		Store:   d.KV,
		Quota:   d.Quota,
	})
}

// Close releases the store.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
