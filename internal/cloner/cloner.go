// Package cloner materializa o workspace em disco: enumera os repositórios,
// clona ou atualiza cada um e grava o resumo do run ao lado das cópias.
package cloner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/db"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/fsutil"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/git"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// SummaryFileName é o resumo do clone, oculto para o scan não tratá-lo como repositório.
const SummaryFileName = ".clone-summary.json"

type Enumerator interface {
	Enumerate(ctx context.Context, yield func(models.RepositoryDescriptor) error) (int, error)
}

type BranchResolver interface {
	DefaultBranch(ctx context.Context, desc models.RepositoryDescriptor) (string, error)
}

type Options struct {
	RunID       string
	Workspace   string
	ReposDir    string
	Concurrency int
}

type Cloner struct {
	enum     Enumerator
	branches BranchResolver
	git      git.GitClient
	state    db.StateStore
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	summary models.CloneSummary
}

func New(enum Enumerator, branches BranchResolver, gitClient git.GitClient, state db.StateStore, opts Options) *Cloner {
	return &Cloner{
		enum:     enum,
		branches: branches,
		git:      gitClient,
		state:    state,
		opts:     opts,
		now:      time.Now,
	}
}

// Run enumera e clona o workspace inteiro. Falhas de um repositório são
// registradas no resumo e não interrompem os demais. O erro devolvido é da
// enumeração, do cancelamento ou da gravação do resumo; mesmo nesses casos o
// resumo parcial é gravado quando possível.
func (c *Cloner) Run(ctx context.Context) (models.CloneSummary, error) {
	start := time.Now()
	defer logger.Trace("Cloner.Run", start)

	if err := os.MkdirAll(c.opts.ReposDir, 0o755); err != nil {
		return models.CloneSummary{}, errs.Wrap(errs.ErrFilesystem, err, "criar %s", c.opts.ReposDir)
	}

	c.summary = models.CloneSummary{
		RunID:     c.opts.RunID,
		Workspace: c.opts.Workspace,
		StartedAt: c.now().UTC(),
		Cloned:    []string{},
		Updated:   []string{},
		Unchanged: []string{},
		Skipped:   []string{},
		Failures:  []models.RepositoryFailure{},
	}

	pool := startPool(ctx, c.opts.Concurrency, c.process)
	total, enumErr := c.enum.Enumerate(ctx, func(desc models.RepositoryDescriptor) error {
		return pool.submit(ctx, desc)
	})
	pool.wait()

	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	summary.Total = total
	summary.FinishedAt = c.now().UTC()
	sortSummary(&summary)

	if enumErr == nil {
		enumErr = ctx.Err()
	}
	if enumErr != nil {
		logger.Log.Errorw("Enumeração interrompida", "erro", enumErr, "enumerados", total)
	}

	if err := WriteSummary(c.opts.ReposDir, summary); err != nil {
		return summary, errors.Join(enumErr, err)
	}
	logger.Log.Infow("Clone concluído",
		"total", summary.Total,
		"prontos", summary.Succeeded(),
		"clonados", len(summary.Cloned),
		"atualizados", len(summary.Updated),
		"inalterados", len(summary.Unchanged),
		"ignorados", len(summary.Skipped),
		"falhas", len(summary.Failures),
	)
	return summary, enumErr
}

func (c *Cloner) process(ctx context.Context, desc models.RepositoryDescriptor) {
	if ctx.Err() != nil {
		return
	}
	// O resumo usa o nome do diretório: é por ele que o scan encontra a cópia.
	name := desc.Name
	if dirName, err := DirName(desc); err == nil {
		name = dirName
	}
	action, err := c.cloneOne(ctx, desc)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Log.Warnw("Clone cancelado", "repo", desc.Name)
	case errors.Is(err, git.ErrEmptyRepository):
		logger.Log.Infow("Repositório vazio; ignorado", "repo", desc.Name)
		c.record(func(s *models.CloneSummary) { s.Skipped = append(s.Skipped, name) })
	case err != nil:
		logger.Log.Errorw("Falha ao clonar repositório", "repo", desc.Name, "erro", err)
		c.record(func(s *models.CloneSummary) {
			s.Failures = append(s.Failures, models.RepositoryFailure{
				Repository: name,
				Reason:     err.Error(),
				Kind:       errs.Kind(err),
			})
		})
	default:
		logger.Log.Infow("Repositório pronto", "repo", desc.Name, "acao", action)
		c.record(func(s *models.CloneSummary) {
			switch action {
			case models.ActionCloned:
				s.Cloned = append(s.Cloned, name)
			case models.ActionUpdated:
				s.Updated = append(s.Updated, name)
			default:
				s.Unchanged = append(s.Unchanged, name)
			}
		})
	}
}

func (c *Cloner) cloneOne(ctx context.Context, desc models.RepositoryDescriptor) (models.CloneAction, error) {
	dirName, err := DirName(desc)
	if err != nil {
		return "", err
	}

	branch, err := c.branches.DefaultBranch(ctx, desc)
	if err != nil {
		return "", fmt.Errorf("resolver branch padrão: %w", err)
	}

	previous, known, err := c.state.Get(ctx, desc.Name)
	if err != nil {
		logger.Log.Warnw("Estado anterior indisponível", "repo", desc.Name, "erro", err)
		known = false
	}

	res, err := c.git.CloneOrUpdate(ctx, git.CloneRequest{
		URL:    desc.CloneURL,
		Branch: branch,
		Dir:    filepath.Join(c.opts.ReposDir, dirName),
	})
	if err != nil {
		return "", err
	}

	action := res.Action
	// Cópia local recriada: o estado diz se o remoto mudou desde o último run.
	if action == models.ActionCloned && known {
		if previous.LastCommit == res.Head {
			action = models.ActionUnchanged
		} else {
			action = models.ActionUpdated
		}
	}

	err = c.state.Put(ctx, models.RepoState{
		Repository: desc.Name,
		Branch:     branch,
		LastCommit: res.Head,
		UpdatedAt:  c.now().UTC(),
	})
	if err != nil {
		logger.Log.Warnw("Falha ao gravar estado do repositório", "repo", desc.Name, "erro", err)
	}
	return action, nil
}

func (c *Cloner) record(update func(*models.CloneSummary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.summary)
}

// DirName devolve o nome do diretório local do repositório: o próprio nome,
// ou o slug quando o nome não serve como componente de caminho.
func DirName(desc models.RepositoryDescriptor) (string, error) {
	for _, candidate := range []string{desc.Name, desc.Slug} {
		if validDirName(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("nome de repositório inválido para diretório: %q", desc.Name)
}

func validDirName(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`) &&
		name == filepath.Base(name)
}

// WriteSummary grava o resumo atomicamente em <reposDir>/.clone-summary.json.
func WriteSummary(reposDir string, summary models.CloneSummary) error {
	return fsutil.WriteJSONAtomic(filepath.Join(reposDir, SummaryFileName), summary)
}

// ReadSummary lê o resumo do último clone. ok é false quando não há resumo.
func ReadSummary(reposDir string) (summary models.CloneSummary, ok bool, err error) {
	err = fsutil.ReadJSON(filepath.Join(reposDir, SummaryFileName), &summary)
	if errors.Is(err, os.ErrNotExist) {
		return models.CloneSummary{}, false, nil
	}
	if err != nil {
		return models.CloneSummary{}, false, err
	}
	return summary, true, nil
}

func sortSummary(s *models.CloneSummary) {
	sort.Strings(s.Cloned)
	sort.Strings(s.Updated)
	sort.Strings(s.Unchanged)
	sort.Strings(s.Skipped)
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].Repository < s.Failures[j].Repository })
}
