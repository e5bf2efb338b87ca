package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/report"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

var ticketLabels = []string{"automation_scripts", "security_alert"}

// Ticket é um issue aberto para um repositório com achados.
type Ticket struct {
	Repository string
	Key        string
	URL        string
}

type JiraOptions struct {
	BaseURL        string
	Email          string
	APIToken       string
	DefaultProject string
	// ProjectMapPath aponta para um YAML "PROJETO: [repo, ...]".
	ProjectMapPath string
	Workspace      string
}

// JiraTicketer abre um ticket por repositório com achados.
type JiraTicketer struct {
	httpClient *http.Client
	opts       JiraOptions
	projects   map[string]string
}

func NewJiraTicketer(httpClient *http.Client, opts JiraOptions) (*JiraTicketer, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	projects := map[string]string{}
	if opts.ProjectMapPath != "" {
		raw, err := os.ReadFile(opts.ProjectMapPath)
		if err != nil {
			return nil, errs.Wrap(errs.ErrConfiguration, err, "ler JIRA_PROJECT_MAP")
		}
		if projects, err = ParseProjectMap(raw); err != nil {
			return nil, err
		}
	}
	return &JiraTicketer{httpClient: httpClient, opts: opts, projects: projects}, nil
}

// ParseProjectMap inverte o YAML projeto -> repositórios para repositório -> projeto.
func ParseProjectMap(raw []byte) (map[string]string, error) {
	var byProject map[string][]string
	if err := yaml.Unmarshal(raw, &byProject); err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "JIRA_PROJECT_MAP inválido")
	}
	out := make(map[string]string)
	for project, repos := range byProject {
		for _, repo := range repos {
			out[strings.TrimSpace(repo)] = strings.TrimSpace(project)
		}
	}
	return out, nil
}

// ProjectFor devolve o projeto do repositório, ou o projeto padrão.
func (j *JiraTicketer) ProjectFor(repository string) string {
	if p, ok := j.projects[repository]; ok {
		return p
	}
	return j.opts.DefaultProject
}

// CreateTickets abre os tickets do relatório. Falhas individuais são logadas e
// não impedem os demais.
func (j *JiraTicketer) CreateTickets(ctx context.Context, r models.ConsolidatedReport) []Ticket {
	var tickets []Ticket
	for _, c := range report.CountByRepository(r.Findings) {
		project := j.ProjectFor(c.Name)
		if project == "" {
			logger.Log.Warnw("Sem projeto JIRA para o repositório; ticket não criado", "repo", c.Name)
			continue
		}
		t, err := j.createTicket(ctx, project, c.Name, report.FindingsOf(r, c.Name))
		if err != nil {
			logger.Log.Errorw("Falha ao criar ticket JIRA", "repo", c.Name, "erro", err)
			continue
		}
		logger.Log.Infow("Ticket JIRA criado", "repo", c.Name, "ticket", t.Key)
		tickets = append(tickets, t)
	}
	return tickets
}

type issueRequest struct {
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Project     map[string]string `json:"project"`
	Summary     string            `json:"summary"`
	Description adfNode           `json:"description"`
	IssueType   map[string]string `json:"issuetype"`
	Labels      []string          `json:"labels,omitempty"`
}

func (j *JiraTicketer) createTicket(ctx context.Context, project, repository string, findings []models.Finding) (Ticket, error) {
	body, err := json.Marshal(issueRequest{Fields: issueFields{
		Project:     map[string]string{"key": project},
		Summary:     "Potential secrets found in " + repository,
		Description: j.description(repository, findings),
		IssueType:   map[string]string{"name": "Bug"},
		Labels:      ticketLabels,
	}})
	if err != nil {
		return Ticket{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.opts.BaseURL+"/rest/api/3/issue", bytes.NewReader(body))
	if err != nil {
		return Ticket{}, err
	}
	req.SetBasicAuth(j.opts.Email, j.opts.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return Ticket{}, errs.Wrap(errs.ErrTransient, err, "POST /rest/api/3/issue")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Ticket{}, errs.New(errs.ErrAuthentication, "jira respondeu %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Ticket{}, fmt.Errorf("jira respondeu %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Ticket{}, fmt.Errorf("decodificar resposta do jira: %w", err)
	}
	return Ticket{
		Repository: repository,
		Key:        created.Key,
		URL:        j.opts.BaseURL + "/browse/" + created.Key,
	}, nil
}

// adfNode é um nó do Atlassian Document Format.
type adfNode struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []adfMark      `json:"marks,omitempty"`
	Content []adfNode      `json:"content,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

type adfMark struct {
	Type string `json:"type"`
}

func adfText(s string, marks ...string) adfNode {
	n := adfNode{Type: "text", Text: s}
	for _, m := range marks {
		n.Marks = append(n.Marks, adfMark{Type: m})
	}
	return n
}

func adfParagraph(children ...adfNode) adfNode {
	return adfNode{Type: "paragraph", Content: children}
}

func adfBullets(items ...string) adfNode {
	list := adfNode{Type: "bulletList"}
	for _, it := range items {
		list.Content = append(list.Content, adfNode{Type: "listItem", Content: []adfNode{adfParagraph(adfText(it))}})
	}
	return list
}

func (j *JiraTicketer) description(repository string, findings []models.Finding) adfNode {
	var results strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&results, "%s:%d %s sha256=%s\n", f.File, f.Line, f.RuleID, f.SecretSHA256[:min(12, len(f.SecretSHA256))])
	}
	repoURL := "https://bitbucket.org/" + repository
	if j.opts.Workspace != "" {
		repoURL = "https://bitbucket.org/" + j.opts.Workspace + "/" + repository
	}

	return adfNode{
		Type:    "doc",
		Version: 1,
		Content: []adfNode{
			adfParagraph(adfText("Issue Summary:", "strong")),
			adfParagraph(adfText(fmt.Sprintf("We have detected %d potential secret(s) in your repository. "+
				"These may include API keys, passwords or other credentials.", len(findings)))),
			adfParagraph(adfText("Repository:", "strong")),
			adfParagraph(adfText(repository)),
			adfParagraph(adfText("Bitbucket URL:", "strong")),
			adfParagraph(adfText(repoURL)),
			adfParagraph(adfText("Results:", "strong")),
			{Type: "codeBlock", Content: []adfNode{adfText(strings.TrimRight(results.String(), "\n"))}},
			adfParagraph(adfText("Recommended Actions:", "strong")),
			adfBullets(
				"Review the identified files to confirm the presence of secrets.",
				"Remove the hardcoded credentials from the repository.",
				"Revoke the exposed keys immediately.",
				"Move credentials to a secret manager.",
			),
		},
	}
}
