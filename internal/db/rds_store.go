package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// RDSStore implementa StateStore numa tabela repo_updates do PostgreSQL (RDS).
type RDSStore struct {
	DB *sql.DB
}

var _ StateStore = (*RDSStore)(nil)

const createTable = `CREATE TABLE IF NOT EXISTS repo_updates (
	repository  TEXT PRIMARY KEY,
	branch      TEXT NOT NULL,
	last_commit TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

// OpenRDSStore abre a conexão com lib/pq, valida com Ping e garante a tabela.
func OpenRDSStore(ctx context.Context, connString string) (*RDSStore, error) {
	conn, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "abrir conexão postgres")
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.ErrTransient, err, "ping postgres")
	}
	store := &RDSStore{DB: conn}
	if err := store.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (r *RDSStore) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("criar tabela repo_updates: %w", err)
	}
	return nil
}

func (r *RDSStore) Get(ctx context.Context, repository string) (models.RepoState, bool, error) {
	start := time.Now()
	defer logger.Trace("RDSStore.Get", start)

	st := models.RepoState{Repository: repository}
	err := r.DB.QueryRowContext(ctx,
		`SELECT branch, last_commit, updated_at FROM repo_updates WHERE repository = $1`,
		repository,
	).Scan(&st.Branch, &st.LastCommit, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RepoState{}, false, nil
	}
	if err != nil {
		return models.RepoState{}, false, fmt.Errorf("erro ao ler estado de %s: %w", repository, err)
	}
	return st, true, nil
}

func (r *RDSStore) Put(ctx context.Context, state models.RepoState) error {
	start := time.Now()
	defer logger.Trace("RDSStore.Put", start)

	query := `
		INSERT INTO repo_updates (repository, branch, last_commit, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (repository) DO UPDATE
		SET branch = EXCLUDED.branch, last_commit = EXCLUDED.last_commit, updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, query, state.Repository, state.Branch, state.LastCommit, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("erro ao gravar estado de %s: %w", state.Repository, err)
	}
	return nil
}

func (r *RDSStore) Close() error {
	return r.DB.Close()
}
