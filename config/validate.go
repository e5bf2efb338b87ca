package config

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
)

// Section identifica o bloco de configuração que um subcomando exige.
type Section string

const (
	SectionClone  Section = "clone"
	SectionScan   Section = "scan"
	SectionNotify Section = "notify"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Os erros passam a citar o nome da variável de ambiente, não o campo Go.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate confere os blocos exigidos pelas seções pedidas, mais os blocos
// opcionais que estiverem habilitados. Deve rodar antes de qualquer chamada de rede.
func (c *Config) Validate(sections ...Section) error {
	targets := []any{&c.Log, &c.SecretsManager, &c.Vault, &c.SQS, &c.Postgres, &c.Minio, &c.Jira}
	for _, s := range sections {
		switch s {
		case SectionClone:
			targets = append(targets, &c.Bitbucket, &c.Paths, &c.Clone)
		case SectionScan:
			targets = append(targets, &c.Paths, &c.Scanner)
		case SectionNotify:
			targets = append(targets, &c.Slack, &c.Paths, &c.Notify)
		}
	}

	seen := map[string]struct{}{}
	var problems []string
	for _, t := range targets {
		err := validate.Struct(t)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errs.Wrap(errs.ErrConfiguration, err, "validar configuração")
		}
		for _, fe := range verrs {
			msg := describe(fe)
			if _, dup := seen[msg]; dup {
				continue
			}
			seen[msg] = struct{}{}
			problems = append(problems, msg)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return errs.New(errs.ErrConfiguration, "configuração inválida: %s", strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return fe.Field() + " ausente"
	case "oneof":
		return fe.Field() + " deve ser um de [" + fe.Param() + "]"
	case "url":
		return fe.Field() + " não é uma URL válida"
	default:
		return fe.Field() + " inválido (" + fe.Tag() + "=" + fe.Param() + ")"
	}
}
