// Package db guarda o último head conhecido de cada repositório clonado. O clone
// usa esse estado só para classificar o repositório como novo, atualizado ou
// inalterado no resumo.
package db

import (
	"context"

	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// StateStore define a persistência do estado dos clones.
type StateStore interface {
	Get(ctx context.Context, repository string) (models.RepoState, bool, error)
	Put(ctx context.Context, state models.RepoState) error
	Close() error
}
