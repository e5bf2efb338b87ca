// Package git mantém as cópias locais dos repositórios: clona quando o
// diretório não existe e faz pull quando já existe.
package git

import (
	"context"

	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// GitClient define a operação idempotente de clone/atualização.
type GitClient interface {
	CloneOrUpdate(ctx context.Context, req CloneRequest) (CloneResult, error)
}

type CloneRequest struct {
	URL    string
	Branch string // vazio usa o HEAD remoto
	Dir    string
}

type CloneResult struct {
	Action       models.CloneAction
	Head         string
	PreviousHead string
}
