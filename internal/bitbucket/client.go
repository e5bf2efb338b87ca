// Package bitbucket conversa com a API REST 2.0 do Bitbucket Cloud: listagem
// paginada dos repositórios de um workspace e das branches de cada um.
package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

const pageLen = 100

type Client struct {
	httpClient  *http.Client
	baseURL     string
	workspace   models.Workspace
	appPassword string
	rateLimiter *RateLimiter
}

// NewClient cria um cliente autenticado com usuário + app password. rps limita
// as requisições por segundo.
func NewClient(httpClient *http.Client, baseURL string, ws models.Workspace, appPassword string, rps float64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		workspace:   ws,
		appPassword: appPassword,
		rateLimiter: NewRateLimiter(rps, 5),
	}
}

// RepositoryPage é uma página da listagem já convertida para o modelo.
type RepositoryPage struct {
	Repositories []models.RepositoryDescriptor
	Next         string
}

type Branch struct {
	Name   string
	Commit string
}

type repositoryResponse struct {
	Values []struct {
		Name       string `json:"name"`
		Slug       string `json:"slug"`
		FullName   string `json:"full_name"`
		MainBranch *struct {
			Name string `json:"name"`
		} `json:"mainbranch"`
		Links struct {
			Clone []struct {
				Name string `json:"name"`
				Href string `json:"href"`
			} `json:"clone"`
		} `json:"links"`
	} `json:"values"`
	Page int    `json:"page"`
	Next string `json:"next"`
}

type branchResponse struct {
	Values []struct {
		Name   string `json:"name"`
		Target struct {
			Hash string `json:"hash"`
		} `json:"target"`
	} `json:"values"`
	Next string `json:"next"`
}

// FirstPageURL devolve o ponto de partida da paginação do workspace.
func (c *Client) FirstPageURL() string {
	return fmt.Sprintf("%s/repositories/%s?pagelen=%d", c.baseURL, url.PathEscape(c.workspace.Name), pageLen)
}

// ListRepositories busca uma única página. pageURL é FirstPageURL ou o campo
// "next" da página anterior.
func (c *Client) ListRepositories(ctx context.Context, pageURL string) (*RepositoryPage, error) {
	var resp repositoryResponse
	if err := c.getJSON(ctx, pageURL, &resp); err != nil {
		return nil, err
	}

	page := &RepositoryPage{
		Repositories: make([]models.RepositoryDescriptor, 0, len(resp.Values)),
		Next:         resp.Next,
	}
	for _, v := range resp.Values {
		desc := models.RepositoryDescriptor{
			Name:     v.Name,
			Slug:     v.Slug,
			FullName: v.FullName,
			Page:     resp.Page,
		}
		if v.MainBranch != nil {
			desc.MainBranch = v.MainBranch.Name
		}
		for _, l := range v.Links.Clone {
			if l.Name == "https" {
				desc.CloneURL = l.Href
			}
		}
		if desc.CloneURL == "" {
			desc.CloneURL = fmt.Sprintf("https://bitbucket.org/%s.git", v.FullName)
		}
		page.Repositories = append(page.Repositories, desc)
	}
	return page, nil
}

// ListBranches percorre todas as páginas de refs/branches de um repositório.
func (c *Client) ListBranches(ctx context.Context, slug string) ([]Branch, error) {
	next := fmt.Sprintf("%s/repositories/%s/%s/refs/branches?pagelen=%d",
		c.baseURL, url.PathEscape(c.workspace.Name), url.PathEscape(slug), pageLen)

	var branches []Branch
	for next != "" {
		var resp branchResponse
		if err := c.getJSON(ctx, next, &resp); err != nil {
			return nil, err
		}
		for _, v := range resp.Values {
			branches = append(branches, Branch{Name: v.Name, Commit: v.Target.Hash})
		}
		next = resp.Next
	}
	return branches, nil
}

// DefaultBranch decide qual branch clonar: a mainbranch declarada no
// repositório ou, na falta dela, master > main > a primeira listada.
func (c *Client) DefaultBranch(ctx context.Context, desc models.RepositoryDescriptor) (string, error) {
	if desc.MainBranch != "" {
		return desc.MainBranch, nil
	}
	branches, err := c.ListBranches(ctx, desc.Slug)
	if err != nil {
		return "", err
	}
	return PickBranch(branches), nil
}

// PickBranch aplica a preferência master > main > primeira. Vazio se não houver branches.
func PickBranch(branches []Branch) string {
	if len(branches) == 0 {
		return ""
	}
	for _, preferred := range []string{"master", "main"} {
		for _, b := range branches {
			if b.Name == preferred {
				return b.Name
			}
		}
	}
	return branches[0].Name
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	start := time.Now()
	defer logger.Trace("bitbucket.getJSON", start)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("montar requisição %s: %w", rawURL, err)
	}
	req.SetBasicAuth(c.workspace.Username, c.appPassword)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Wrap(errs.ErrTransient, err, "GET %s", redactURL(rawURL))
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			if wait := retryAfter(resp.Header.Get("Retry-After")); wait > 0 {
				logger.Log.Warnw("Bitbucket pediu para reduzir o ritmo", "retry_after", wait.String())
				c.rateLimiter.Throttle(wait)
			}
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decodificar resposta de %s: %w", redactURL(rawURL), err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	target := redactURL(resp.Request.URL.String())
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.New(errs.ErrAuthentication, "bitbucket recusou as credenciais (%d) em %s", resp.StatusCode, target)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errs.New(errs.ErrTransient, "bitbucket respondeu %d em %s: %s", resp.StatusCode, target, detail)
	default:
		return &StatusError{Code: resp.StatusCode, URL: target, Body: detail}
	}
}

// retryAfter aceita segundos ou data HTTP. Zero quando ausente ou inválido.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at)
	}
	return 0
}

// StatusError é uma resposta HTTP inesperada que não cabe na taxonomia.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bitbucket respondeu %d em %s: %s", e.Code, e.URL, e.Body)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
