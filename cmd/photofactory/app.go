package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/photofactory/internal/access"
	"github.com/mesh-intelligence/photofactory/internal/auth"
	"github.com/mesh-intelligence/photofactory/internal/jobnumber"
	"github.com/mesh-intelligence/photofactory/internal/kvstore"
	"github.com/mesh-intelligence/photofactory/internal/paths"
	"github.com/mesh-intelligence/photofactory/internal/retry"
	"github.com/mesh-intelligence/photofactory/internal/staging"
	"github.com/mesh-intelligence/photofactory/internal/upload"
	"github.com/mesh-intelligence/photofactory/pkg/sqlite"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// app is the set of components one command works with. Close releases the
// store.
type app struct {
	store   *sqlite.Backend
	api     *access.API
	auth    *auth.Local
	numbers *jobnumber.Generator
}

// openApp attaches the store in the resolved data directory.
func (c *cli) openApp() (*app, error) {
	store, err := sqlite.Open(c.dataDir, sqlite.WithLogger(c.logger), sqlite.WithClock(c.now))
	if err != nil {
		return nil, err
	}
	api := access.New(store, access.WithLogger(c.logger), access.WithClock(c.now))
	return &app{
		store: store,
		api:   api,
		auth: auth.New(api,
			auth.WithSecret(c.cfg.Auth.Secret),
			auth.WithTTL(c.cfg.Auth.TokenTTL),
			auth.WithClock(c.now),
			auth.WithLogger(c.logger)),
		numbers: jobnumber.New(api.Jobs,
			jobnumber.WithClock(c.now),
			jobnumber.WithLogger(c.logger),
			jobnumber.WithRetries(c.cfg.JobNumber.MaxRetries),
			jobnumber.WithBaseDelay(c.cfg.JobNumber.BaseDelay)),
	}, nil
}

func (a *app) Close() error {
	return a.store.Detach()
}

// openSession restores the staging session from the session blob in the
// data directory.
func (c *cli) openSession(ctx context.Context, a *app) (*staging.Manager, error) {
	blob, err := kvstore.Open(c.dataDir, c.cfg.BlobQuotaBytes)
	if err != nil {
		return nil, types.DatabaseError("opening session storage", err)
	}
	uploader, err := upload.New(c.cfg.UploadConfig(paths.UploadDir(c.dataDir)), c.logger)
	if err != nil {
		return nil, fmt.Errorf("configure uploads: %w", err)
	}
	return staging.Open(ctx, staging.Options{
		Store:    a.store,
		Blob:     blob,
		Clock:    c.now,
		Logger:   c.logger,
		Limits:   c.cfg.SessionLimits(),
		API:      a.api,
		Numbers:  a.numbers,
		Uploader: uploader,
		Auth:     a.auth,
		Retry:    retry.Policy{MaxRetries: c.cfg.Upload.Retries},
	})
}

// withApp opens the store, runs fn and closes the store, keeping fn's error
// ahead of the close error.
func (c *cli) withApp(fn func(a *app) error) error {
	a, err := c.openApp()
	if err != nil {
		return err
	}
	err = fn(a)
	if cerr := a.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
	}
	return err
}

// withSession is withApp plus a restored session that is flushed afterwards.
func (c *cli) withSession(ctx context.Context, fn func(a *app, m *staging.Manager) error) error {
	return c.withApp(func(a *app) error {
		m, err := c.openSession(ctx, a)
		if err != nil {
			return err
		}
		err = fn(a, m)
		if cerr := m.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return err
	})
}
