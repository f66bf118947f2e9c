// Package store persists ark records in the local GORM store.
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/ark/internal/model"
)

// Factory defines the factory interface for creating stores.
type Factory interface {
	Connections() ConnectionStore
	Icons() IconStore
	Scripts() ScriptStore
	Settings() SettingsStore
	Close() error
}

// ConnectionStore defines the stored connection interface.
type ConnectionStore interface {
	Get(ctx context.Context, id string) (*model.StoredConnection, error)
	List(ctx context.Context) ([]*model.StoredConnection, error)
	Put(ctx context.Context, conn *model.StoredConnection) error
	Delete(ctx context.Context, id string) error
}

// IconStore defines the connection icon interface.
type IconStore interface {
	Get(ctx context.Context, id string) (*model.Icon, error)
	Put(ctx context.Context, icon *model.Icon) error
	Delete(ctx context.Context, id string) error
}

// ScriptStore defines the saved script interface.
type ScriptStore interface {
	Get(ctx context.Context, id string) (*model.Script, error)
	List(ctx context.Context) ([]*model.Script, error)
	Put(ctx context.Context, script *model.Script) error
	Delete(ctx context.Context, id string) error
}

// SettingsStore defines the settings interface.
type SettingsStore interface {
	Get(ctx context.Context) (*model.Settings, error)
	Put(ctx context.Context, settings *model.Settings) error
}

type datastore struct {
	db *gorm.DB
}

// NewStore returns a Factory over db.
func NewStore(db *gorm.DB) Factory {
	return &datastore{db: db}
}

// AutoMigrate migrates the database schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Record{})
}

func (ds *datastore) Connections() ConnectionStore {
	return &connections{newCollection[model.StoredConnection](ds.db, model.CollectionConnections)}
}

func (ds *datastore) Icons() IconStore {
	return &icons{newCollection[model.Icon](ds.db, model.CollectionIcons)}
}

func (ds *datastore) Scripts() ScriptStore {
	return &scripts{newCollection[model.Script](ds.db, model.CollectionScripts)}
}

func (ds *datastore) Settings() SettingsStore {
	return &settings{newCollection[model.Settings](ds.db, model.CollectionSettings)}
}

// Close closes the factory and underlying connections.
func (ds *datastore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
