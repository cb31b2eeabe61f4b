// Package app assembles the session engine from configuration: store,
// catalog, schema registry, LLM provider, generation, marking, statistics,
// selection strategies and the session manager.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/catalog"
	"github.com/abhisek/lingua/internal/config"
	"github.com/abhisek/lingua/internal/contentgen"
	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/llm"
	"github.com/abhisek/lingua/internal/marking"
	"github.com/abhisek/lingua/internal/picker"
	"github.com/abhisek/lingua/internal/session"
	"github.com/abhisek/lingua/internal/stats"
	"github.com/abhisek/lingua/internal/store"
)

// Options override parts of the assembly. Zero values are built from the
// configuration.
type Options struct {
	Log      *zap.Logger
	Store    *store.Store
	Provider llm.Provider
	Catalog  catalog.Source
	Rand     picker.Rand
	Now      func() time.Time
}

// App is the assembled engine.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	Store     *store.Store
	Catalog   *catalog.Catalog
	Schemas   *interaction.Registry
	Provider  llm.Provider
	Generator *contentgen.Service
	Marker    *marking.Service
	Stats     *stats.Aggregator
	Pickers   *picker.Registry
	Sessions  *session.Manager

	ownsStore bool
}

// New builds the engine. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log, Store: opts.Store}

	cat, schemas, err := LoadContent(cfg.Engine.CatalogDir, opts.Catalog)
	if err != nil {
		return nil, err
	}
	a.Catalog, a.Schemas = cat, schemas

	if a.Store == nil {
		a.Store, err = OpenStore(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.ownsStore = true
	}

	a.Provider = opts.Provider
	if a.Provider == nil {
		if err := cfg.LLM.Validate(); err != nil {
			a.Close()
			return nil, fmt.Errorf("llm provider not configured: %w", err)
		}
		a.Provider, err = llm.NewProvider(ctx, cfg.LLM, a.Store.LLMEventRepo(), log.Named("llm"))
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Generator = contentgen.NewService(a.Provider, cfg.Engine.ContentGen(cfg.LLM), log.Named("contentgen"))
	a.Marker = marking.NewService(a.Generator, log.Named("marking"))
	a.Stats = stats.NewAggregator(a.Store.EventRepo(), schemas, log.Named("stats"))

	a.Pickers = picker.NewDefaultRegistry(cat, opts.Rand)
	if err := a.Pickers.Use(cfg.Engine.PickerStrategy); err != nil {
		a.Close()
		return nil, err
	}

	a.Sessions = session.NewManager(session.Deps{
		Modules:   cat,
		Schemas:   schemas,
		Picker:    a.Pickers,
		Generator: a.Generator,
		Marker:    a.Marker,
		Recorder:  a.Stats,
		Sessions:  a.Store.SessionRepo(),
		Log:       log.Named("session"),
		Now:       opts.Now,
	}, cfg.Engine.Session())

	log.Info("engine ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", a.Provider.ModelID()),
		zap.String("picker", a.Pickers.Active()),
		zap.String("database", cfg.Database.Driver))
	return a, nil
}

// LoadContent initializes the interaction schema registry and the catalog
// and checks that every schema the catalog references is registered. src
// wins over dir; with neither, the embedded catalog is used.
func LoadContent(dir string, src catalog.Source) (*catalog.Catalog, *interaction.Registry, error) {
	schemas := interaction.NewRegistry()
	if err := schemas.Initialize(interaction.Builtins()); err != nil {
		return nil, nil, err
	}

	if src == nil {
		if dir != "" {
			src = catalog.FSSource{FS: os.DirFS(dir), Dir: "."}
		} else {
			src = catalog.DefaultSource()
		}
	}
	cat := catalog.New()
	if err := cat.Initialize(src); err != nil {
		return nil, nil, err
	}
	if err := cat.ValidateAgainst(schemas); err != nil {
		return nil, nil, err
	}
	return cat, schemas, nil
}

// OpenStore opens the configured database. SQLite without a DSN uses the
// default data file.
func OpenStore(db config.DatabaseConfig) (*store.Store, error) {
	dsn := db.DSN
	if db.Driver == string(store.DialectSQLite) && dsn == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve DB path: %w", err)
		}
		dsn = p
	}
	st, err := store.OpenDialect(store.Dialect(db.Driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// RunPruner ends and forgets idle sessions every interval until ctx is
// done. It does nothing when the idle timeout is zero.
func (a *App) RunPruner(ctx context.Context) {
	idle := a.Config.Engine.SessionIdleTimeout
	if idle <= 0 {
		return
	}
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Sessions.Prune(ctx, idle); n > 0 {
				a.Log.Info("pruned idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Close releases the store if App opened it.
func (a *App) Close() error {
	if a.ownsStore && a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
