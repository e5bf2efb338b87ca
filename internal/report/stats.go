package report

import (
	"sort"

	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// Count é um par nome/quantidade, ordenado por quantidade decrescente.
type Count struct {
	Name  string
	Count int
}

func CountByRepository(findings []models.Finding) []Count {
	return countBy(findings, func(f models.Finding) string { return f.Repository })
}

func CountByRule(findings []models.Finding) []Count {
	return countBy(findings, func(f models.Finding) string { return f.RuleID })
}

func countBy(findings []models.Finding, key func(models.Finding) string) []Count {
	m := make(map[string]int)
	for _, f := range findings {
		m[key(f)]++
	}
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ByStatus devolve os nomes dos repositórios com o status pedido, em ordem.
func ByStatus(r models.ConsolidatedReport, status models.RepositoryStatus) []string {
	var names []string
	for _, repo := range r.Repositories {
		if repo.Status == status {
			names = append(names, repo.Name)
		}
	}
	sort.Strings(names)
	return names
}

// FindingsOf devolve os achados de um repositório.
func FindingsOf(r models.ConsolidatedReport, repository string) []models.Finding {
	var out []models.Finding
	for _, f := range r.Findings {
		if f.Repository == repository {
			out = append(out, f)
		}
	}
	return out
}
