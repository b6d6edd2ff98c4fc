package ledger

import (
	"context"
	"fmt"

	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/pkg/config"
	"github.com/wonny/confluence/pkg/database"
	"github.com/wonny/confluence/pkg/logger"
)

// Backend names accepted by LEDGER_BACKEND
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Open builds the configured ledger. The returned Ledger owns any DB pool
// it opened; call Close when done.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Ledger, error) {
	switch cfg.Storage.LedgerBackend {
	case BackendFile, "":
		store, err := NewFileStore(cfg.Storage.LedgerPath)
		if err != nil {
			return nil, err
		}
		log.WithField("path", store.Path()).Info("Using file ledger")
		return New(store, log, m), nil

	case BackendPostgres:
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db.Pool)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("Using postgres ledger")
		return New(&ownedStore{Store: store, db: db}, log, m), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Storage.LedgerBackend)
}

// ownedStore closes the pool together with the store
type ownedStore struct {
	Store
	db *database.DB
}

func (o *ownedStore) Close() error {
	err := o.Store.Close()
	o.db.Close()
	return err
}

// Database returns the pool the ledger opened, or nil for the file backend
func (l *Ledger) Database() *database.DB {
	if o, ok := l.store.(*ownedStore); ok {
		return o.db
	}
	return nil
}
