package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/vocdoni-credentials/config"
	"github.com/vocdoni/vocdoni-credentials/issuer"
	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/proofcache"
	"github.com/vocdoni/vocdoni-credentials/service"
	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/storage/sqlledger"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Output, os.Stderr); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// credential store
	var database db.Database
	switch cfg.Storage.DBType {
	case config.DBTypeMemory:
		log.Warnw("using an in-memory credential store, issued credentials are lost on exit")
		database = memdb.New()
	default:
		if database, err = metadb.New(db.TypePebble, filepath.Join(cfg.Storage.DataDir, "credentials")); err != nil {
			log.Fatalf("failed to open the credential database: %v", err)
		}
	}
	store := storage.New(database)
	defer store.Close()

	// vote ledger
	var ledger issuer.VoteLedger = store
	switch cfg.Ledger.Backend {
	case config.LedgerSQLite, config.LedgerPostgres:
		driver := sqlledger.DriverSQLite
		if cfg.Ledger.Backend == config.LedgerPostgres {
			driver = sqlledger.DriverPostgres
		}
		sqlLedger, err := sqlledger.Open(ctx, driver, cfg.Ledger.DSN)
		if err != nil {
			log.Fatalf("failed to open the vote ledger: %v", err)
		}
		defer sqlLedger.Close()
		ledger = sqlLedger
	}

	cache, err := proofcache.New(store, cfg.CacheSize)
	if err != nil {
		log.Fatal(err)
	}
	iss, err := issuer.New(&issuer.Config{
		Store:  store,
		Ledger: ledger,
		Cache:  cache,
	})
	if err != nil {
		log.Fatal(err)
	}

	apiService := service.NewAPI(iss, cfg.API.Host, cfg.API.Port, cfg.API.AdminToken)
	if err := apiService.Start(ctx); err != nil {
		log.Fatal(err)
	}
	host, port := apiService.HostPort()
	log.Infow("credentials node started",
		"host", host,
		"port", port,
		"db", cfg.Storage.DBType,
		"ledger", cfg.Ledger.Backend,
		"cacheSize", cfg.CacheSize)

	<-ctx.Done()
	log.Infow("shutting down")
	apiService.Stop()
}
