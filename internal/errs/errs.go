// Package errs define a taxonomia de erros do pipeline. Cada erro concreto é
// embrulhado (%w) em uma das sentinelas abaixo, assim os chamadores decidem com
// errors.Is se o erro é fatal para o run ou apenas para um repositório.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indica credencial/opção ausente ou inválida. Fatal, pré-voo.
	ErrConfiguration = errors.New("erro de configuração")
	// ErrAuthentication indica que o Bitbucket ou o Slack rejeitou as credenciais.
	ErrAuthentication = errors.New("erro de autenticação")
	// ErrTransient cobre timeouts e respostas 5xx.
	ErrTransient = errors.New("erro transitório de rede")
	// ErrExternalTool indica falha ou saída ilegível do scanner externo.
	ErrExternalTool = errors.New("erro da ferramenta externa")
	// ErrFilesystem indica disco cheio, permissão negada etc. Fatal.
	ErrFilesystem = errors.New("erro de sistema de arquivos")
)

// Wrap embrulha err na categoria kind, preservando ambos para errors.Is/As.
func Wrap(kind, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// New cria um erro da categoria kind sem causa subjacente.
func New(kind error, format string, args ...any) error {
	return Wrap(kind, nil, format, args...)
}

// IsFatal informa se o erro deve abortar o run inteiro.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrFilesystem)
}

// Kind devolve o nome curto da categoria, usado nos resumos e logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	default:
		return "unknown"
	}
}
