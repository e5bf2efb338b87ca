package models

import "time"

// Workspace identifica a conta do Bitbucket cujos repositórios são varridos.
type Workspace struct {
	Name     string
	Username string
}

// RepositoryDescriptor é uma entrada da listagem paginada do Bitbucket. Vive
// apenas o tempo de disparar o clone.
type RepositoryDescriptor struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	FullName   string `json:"full_name"`
	CloneURL   string `json:"clone_url"`
	MainBranch string `json:"main_branch,omitempty"`
	Page       int    `json:"page"`
}

type CloneAction string

const (
	ActionCloned    CloneAction = "cloned"
	ActionUpdated   CloneAction = "updated"
	ActionUnchanged CloneAction = "unchanged"
)

// RepoState guarda o último head conhecido de cada repositório local.
type RepoState struct {
	Repository string    `json:"repository"`
	Branch     string    `json:"branch"`
	LastCommit string    `json:"last_commit"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type RepositoryFailure struct {
	Repository string `json:"repository"`
	Reason     string `json:"reason"`
	Kind       string `json:"kind,omitempty"`
}

// CloneSummary é gravado pelo clone ao lado dos repositórios e lido pelo scan,
// que assim sabe quais repositórios existiam e quais falharam.
type CloneSummary struct {
	RunID      string              `json:"run_id"`
	Workspace  string              `json:"workspace"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Total      int                 `json:"total"`
	Cloned     []string            `json:"cloned"`
	Updated    []string            `json:"updated"`
	Unchanged  []string            `json:"unchanged"`
	Skipped    []string            `json:"skipped"`
	Failures   []RepositoryFailure `json:"failures"`
}

// Succeeded conta os repositórios que têm cópia local atualizada.
func (s CloneSummary) Succeeded() int {
	return len(s.Cloned) + len(s.Updated) + len(s.Unchanged)
}

// Finding é um segredo detectado. O valor bruto nunca é persistido: só o
// digest SHA-256 e um trecho truncado do match.
type Finding struct {
	Repository   string `json:"repository"`
	File         string `json:"file"`
	Line         int    `json:"line"`
	RuleID       string `json:"rule"`
	Description  string `json:"description,omitempty"`
	Commit       string `json:"commit,omitempty"`
	Match        string `json:"match,omitempty"`
	SecretSHA256 string `json:"secret_sha256"`
}

type RepositoryStatus string

const (
	StatusScanned     RepositoryStatus = "scanned"
	StatusScanFailed  RepositoryStatus = "scan_failed"
	StatusCloneFailed RepositoryStatus = "clone_failed"
	StatusSkipped     RepositoryStatus = "skipped"
)

type RepositoryResult struct {
	Name         string           `json:"name"`
	Status       RepositoryStatus `json:"status"`
	FindingCount int              `json:"finding_count"`
	Error        string           `json:"error,omitempty"`
}

// ConsolidatedReport é o artefato trocado entre scan e notify.
type ConsolidatedReport struct {
	RunID             string             `json:"run_id"`
	GeneratedAt       time.Time          `json:"generated_at"`
	Workspace         string             `json:"workspace,omitempty"`
	Scanner           string             `json:"scanner"`
	RepositoriesTotal int                `json:"repositories_total"`
	Repositories      []RepositoryResult `json:"repositories"`
	Findings          []Finding          `json:"findings"`
	TotalFindings     int                `json:"total_findings"`
}

// ReportReady é publicado na fila quando um relatório novo está disponível.
type ReportReady struct {
	RunID               string    `json:"run_id"`
	ReportPath          string    `json:"report_path"`
	ArchiveURL          string    `json:"archive_url,omitempty"`
	RepositoriesScanned int       `json:"repositories_scanned"`
	TotalFindings       int       `json:"total_findings"`
	GeneratedAt         time.Time `json:"generated_at"`
}
