package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	httpAuth "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// ErrEmptyRepository indica um repositório remoto sem nenhum commit.
var ErrEmptyRepository = errors.New("repositório remoto vazio")

// GoGitClient implementa GitClient usando go-git.
type GoGitClient struct {
	Username string
	Password string
	Progress io.Writer
}

var _ GitClient = (*GoGitClient)(nil)

func (c *GoGitClient) CloneOrUpdate(ctx context.Context, req CloneRequest) (CloneResult, error) {
	start := time.Now()
	defer logger.Trace("CloneOrUpdate", start)

	repo, err := git.PlainOpen(req.Dir)
	switch {
	case err == nil:
		if _, headErr := repo.Head(); errors.Is(headErr, plumbing.ErrReferenceNotFound) {
			// .git criado mas o fetch não terminou: HEAD não resolve.
			return c.reclone(ctx, req, "repositório sem HEAD; clonando novamente")
		}
		return c.pull(ctx, repo, req)
	case errors.Is(err, git.ErrRepositoryNotExists):
		// Sobra de um clone interrompido: o diretório existe mas não é um repositório.
		return c.reclone(ctx, req, "diretório sem repositório válido; clonando novamente")
	default:
		return CloneResult{}, fmt.Errorf("abrir repositório em %s: %w", req.Dir, err)
	}
}

// reclone descarta o que houver em req.Dir e clona do zero.
func (c *GoGitClient) reclone(ctx context.Context, req CloneRequest, reason string) (CloneResult, error) {
	if _, err := os.Stat(req.Dir); err == nil {
		logger.Log.Warnw(reason, "dir", req.Dir)
		if err := os.RemoveAll(req.Dir); err != nil {
			return CloneResult{}, errs.Wrap(errs.ErrFilesystem, err, "remover %s", req.Dir)
		}
	}
	return c.clone(ctx, req)
}

func (c *GoGitClient) clone(ctx context.Context, req CloneRequest) (CloneResult, error) {
	opts := &git.CloneOptions{
		URL:      req.URL,
		Auth:     c.auth(),
		Progress: c.Progress,
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, req.Dir, false, opts)
	if err != nil {
		// Não deixa um clone pela metade para o scan encontrar.
		os.RemoveAll(req.Dir)
		return CloneResult{}, classify(err, "git clone")
	}

	head, err := headHash(repo)
	if err != nil {
		return CloneResult{}, err
	}
	return CloneResult{Action: models.ActionCloned, Head: head}, nil
}

func (c *GoGitClient) pull(ctx context.Context, repo *git.Repository, req CloneRequest) (CloneResult, error) {
	previous, err := headHash(repo)
	if err != nil {
		return CloneResult{}, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return CloneResult{}, fmt.Errorf("abrir worktree de %s: %w", req.Dir, err)
	}

	opts := &git.PullOptions{
		RemoteName: git.DefaultRemoteName,
		Auth:       c.auth(),
		Progress:   c.Progress,
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
		opts.SingleBranch = true
	}

	err = wt.PullContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return CloneResult{Action: models.ActionUnchanged, Head: previous, PreviousHead: previous}, nil
	}
	if err != nil {
		return CloneResult{}, classify(err, "git pull")
	}

	head, err := headHash(repo)
	if err != nil {
		return CloneResult{}, err
	}
	action := models.ActionUpdated
	if head == previous {
		action = models.ActionUnchanged
	}
	return CloneResult{Action: action, Head: head, PreviousHead: previous}, nil
}

func (c *GoGitClient) auth() transport.AuthMethod {
	if c.Username == "" && c.Password == "" {
		return nil
	}
	return &httpAuth.BasicAuth{Username: c.Username, Password: c.Password}
}

func headHash(repo *git.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("ler HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// classify traduz os erros do go-git para a taxonomia do módulo.
func classify(err error, op string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return fmt.Errorf("%s: %w", op, ErrEmptyRepository)
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return errs.Wrap(errs.ErrAuthentication, err, "%s", op)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, os.ErrPermission):
		return errs.Wrap(errs.ErrFilesystem, err, "%s", op)
	default:
		return errs.Wrap(errs.ErrTransient, err, "%s", op)
	}
}
