package sqlstore

import (
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// StoreFactory wires the SQL-backed ledger from either a raw bun DB or a
// persistence client.
type StoreFactory struct {
	db *bun.DB

	processingStore *ProcessingStore
	retention       time.Duration
}

func NewStoreFactory(retention time.Duration) *StoreFactory {
	return &StoreFactory{retention: retention}
}

func NewStoreFactoryFromPersistence(
	client *persistence.Client,
	retention time.Duration,
) (*StoreFactory, error) {
	factory := NewStoreFactory(retention)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewStoreFactoryFromDB(db *bun.DB, retention time.Duration) (*StoreFactory, error) {
	factory := NewStoreFactory(retention)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *StoreFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: store factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.processingStore != nil {
		return nil
	}
	processingStore, err := NewProcessingStore(f.db, f.retention)
	if err != nil {
		return err
	}
	f.processingStore = processingStore
	return nil
}

func (f *StoreFactory) ProcessingStore() *ProcessingStore {
	if f == nil {
		return nil
	}
	return f.processingStore
}

func (f *StoreFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
