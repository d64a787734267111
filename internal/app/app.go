package app

import (
	"fmt"
	"log"

	"quizrunner"
	"quizrunner/config"
)

// App holds the wired components shared by the commands
type App struct {
	Config  *config.Config
	DB      *quizrunner.DB
	Store   quizrunner.Store
	Sources *quizrunner.SourceRouter
	Runner  *quizrunner.Runner

	closers []func() error
}

// New opens the database and the session store selected by cfg and builds a Runner.
// The question bank database is optional unless it also backs the session store.
func New(cfg *config.Config, opts ...quizrunner.RunnerOption) (*App, error) {
	quizrunner.SetVerbose(cfg.Verbose)

	app := &App{Config: cfg}

	db, err := openDB(cfg.Store.SQLitePath)
	if err != nil {
		if cfg.Store.Backend == "sqlite" {
			return nil, err
		}
		log.Printf("Warning: question banks disabled: %v", err)
	} else {
		app.DB = db
		app.closers = append(app.closers, db.CloseDB)
	}

	if err := app.initStore(); err != nil {
		app.Close()
		return nil, err
	}

	app.Sources = NewSourceRouter(cfg, app.DB)
	app.Runner = quizrunner.NewRunner(app.Store, app.Sources, opts...)
	return app, nil
}

func (app *App) initStore() error {
	cfg := app.Config
	switch cfg.Store.Backend {
	case "memory":
		app.Store = quizrunner.NewMemoryStore(cfg.Store.TTL)
	case "sqlite":
		app.Store = quizrunner.NewSQLiteStore(app.DB, cfg.Store.TTL)
	case "redis":
		rs, err := quizrunner.NewRedisStore(quizrunner.RedisOptions{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Store.TTL,
		})
		if err != nil {
			return err
		}
		app.Store = rs
		app.closers = append(app.closers, rs.Close)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	log.Printf("Using %s session store", cfg.Store.Backend)
	return nil
}

// NewSourceRouter builds the question source dispatcher. Banks need db and generated
// quizzes need an OpenAI key; without them those references are rejected.
func NewSourceRouter(cfg *config.Config, db *quizrunner.DB) *quizrunner.SourceRouter {
	router := &quizrunner.SourceRouter{
		JSON: quizrunner.JSONSource{},
		XLSX: quizrunner.XLSXSource{},
	}
	if db != nil {
		router.Bank = quizrunner.NewBankSource(db)
	}
	if cfg.OpenAI.APIKey != "" {
		router.OpenAI = quizrunner.NewOpenAISource(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.LogDir)
	}
	return router
}

// Close releases everything New opened, in reverse order
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			log.Printf("Close error: %v", err)
		}
	}
	app.closers = nil
}

func openDB(path string) (*quizrunner.DB, error) {
	db, err := quizrunner.OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.CreateTables(); err != nil {
		db.CloseDB()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}
