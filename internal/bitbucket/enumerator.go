package bitbucket

import (
	"context"
	"fmt"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// RepositoryLister é a parte da API que a enumeração precisa.
type RepositoryLister interface {
	FirstPageURL() string
	ListRepositories(ctx context.Context, pageURL string) (*RepositoryPage, error)
}

var _ RepositoryLister = (*Client)(nil)

// Enumerator percorre a listagem paginada do workspace seguindo o campo "next".
type Enumerator struct {
	api RepositoryLister
}

func NewEnumerator(api RepositoryLister) *Enumerator {
	return &Enumerator{api: api}
}

// Enumerate entrega cada repositório a yield exatamente uma vez, página a página,
// sem reter a lista. Nenhuma URL de página é requisitada duas vezes: um "next"
// que aponte para uma página já consumida encerra a enumeração com erro.
// Um erro de yield interrompe a enumeração e é devolvido como está.
func (e *Enumerator) Enumerate(ctx context.Context, yield func(models.RepositoryDescriptor) error) (int, error) {
	requested := make(map[string]struct{})
	seen := make(map[string]struct{})
	count := 0

	pageURL := e.api.FirstPageURL()
	for page := 1; pageURL != ""; page++ {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if _, dup := requested[pageURL]; dup {
			return count, fmt.Errorf("paginação em loop: página %s já consumida", redactURL(pageURL))
		}
		requested[pageURL] = struct{}{}

		resp, err := e.api.ListRepositories(ctx, pageURL)
		if err != nil {
			return count, fmt.Errorf("listar repositórios (página %d): %w", page, err)
		}
		logger.Log.Debugw("página de repositórios recebida", "page", page, "repositories", len(resp.Repositories))

		for _, repo := range resp.Repositories {
			key := repo.Slug
			if key == "" {
				key = repo.Name
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if repo.Page == 0 {
				repo.Page = page
			}
			count++
			if err := yield(repo); err != nil {
				return count, err
			}
		}
		pageURL = resp.Next
	}
	return count, nil
}
