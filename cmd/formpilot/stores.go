package main

import (
	"context"
	"database/sql"

	"github.com/sandevgo/formpilot/internal/config"
	"github.com/sandevgo/formpilot/internal/fingerprint"
	"github.com/sandevgo/formpilot/internal/service/vault"
	"github.com/sandevgo/formpilot/internal/storage/sqlite"
)

// stores bundles the persistence handles the one-shot CLI commands need.
type stores struct {
	db       *sql.DB
	broker   *fingerprint.Broker
	Memories *sqlite.MemoryRepo
	Sessions *sqlite.SessionRepo
	Vault    *vault.Vault
}

func openStores(ctx context.Context) (*stores, error) {
	appCfg := config.NewAppConfig(ctx)

	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}

	broker := fingerprint.NewBroker()
	return &stores{
		db:       db,
		broker:   broker,
		Memories: sqlite.NewMemoryRepo(db),
		Sessions: sqlite.NewSessionRepo(db),
		Vault:    vault.New(sqlite.NewVaultRepo(db), broker),
	}, nil
}

func (s *stores) Close() {
	s.broker.Close()
	s.db.Close()
}
