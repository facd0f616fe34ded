package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/canon"
	"github.com/persistorai/kpfed/internal/config"
	"github.com/persistorai/kpfed/internal/db"
	"github.com/persistorai/kpfed/internal/db/migrations"
	"github.com/persistorai/kpfed/internal/dbpool"
)

// newCanonicalizer picks the synonym source: Postgres when DATABASE_URL is
// set, else the YAML synonyms file, else identity. The pool is nil unless
// Postgres is used; the caller closes it.
func newCanonicalizer(ctx context.Context, cfg *config.Config, log *logrus.Logger) (canon.Canonicalizer, *dbpool.Pool, error) {
	if url := cfg.DatabaseURL.Value(); url != "" {
		pool, err := dbpool.NewPool(ctx, url, dbpool.WithMaxConns(cfg.DatabaseMaxConns))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}

		if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
			pool.Close()
			return nil, nil, err
		}

		store := canon.NewStore(pool, log)

		if err := db.NewSynonymListener(log, pool, store).Start(ctx); err != nil {
			log.WithError(err).Warn("synonym change notifications disabled")
		}

		if cfg.SynonymsFile != "" {
			if err := importSynonyms(ctx, store, cfg.SynonymsFile, log); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}

		log.Info("canon: using postgres synonym store")

		return store, pool, nil
	}

	if cfg.SynonymsFile != "" {
		static, err := canon.LoadStatic(cfg.SynonymsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading synonyms: %w", err)
		}

		log.WithField("file", cfg.SynonymsFile).Info("canon: using static synonyms")

		return static, nil, nil
	}

	log.Info("canon: no synonym source configured, ids are used as given")

	return canon.NewStatic(nil), nil, nil
}

// importSynonyms seeds the Postgres table from the YAML file.
func importSynonyms(ctx context.Context, store *canon.Store, path string, log *logrus.Logger) error {
	groups, err := canon.LoadGroups(path)
	if err != nil {
		return fmt.Errorf("loading synonyms: %w", err)
	}

	n, err := store.Import(ctx, groups)
	if err != nil {
		return fmt.Errorf("importing synonyms: %w", err)
	}

	log.WithFields(logrus.Fields{"file": path, "rows": n}).Info("canon: synonyms imported")

	return nil
}
