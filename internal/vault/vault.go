// Package vault lê as credenciais do pipeline de um segredo KV v2 do HashiCorp Vault.
package vault

import (
	"context"
	"errors"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
)

// VaultClient devolve as credenciais como mapa NOME_DA_VARIAVEL -> valor.
type VaultClient interface {
	GetCredentials(ctx context.Context) (map[string]string, error)
}

// KVClient lê um único segredo KV v2.
type KVClient struct {
	client *vaultapi.Client
	mount  string
	path   string
}

var _ VaultClient = (*KVClient)(nil)

func NewKVClient(addr, token, mount, path string) (*KVClient, error) {
	conf := vaultapi.DefaultConfig()
	conf.Address = addr
	conf.Timeout = 15 * time.Second
	client, err := vaultapi.NewClient(conf)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "criar cliente do vault")
	}
	client.SetToken(token)
	return &KVClient{client: client, mount: mount, path: path}, nil
}

func (v *KVClient) GetCredentials(ctx context.Context) (map[string]string, error) {
	start := time.Now()
	defer logger.Trace("Vault.GetCredentials", start)

	secret, err := v.client.KVv2(v.mount).Get(ctx, v.path)
	if err != nil {
		var respErr *vaultapi.ResponseError
		switch {
		case errors.Is(err, vaultapi.ErrSecretNotFound):
			return nil, errs.Wrap(errs.ErrConfiguration, err, "segredo %s/%s não existe", v.mount, v.path)
		case errors.As(err, &respErr) && (respErr.StatusCode == 401 || respErr.StatusCode == 403):
			return nil, errs.Wrap(errs.ErrAuthentication, err, "vault recusou o token")
		default:
			return nil, errs.Wrap(errs.ErrTransient, err, "ler segredo do vault")
		}
	}

	out := make(map[string]string, len(secret.Data))
	for k, val := range secret.Data {
		s, ok := val.(string)
		if !ok {
			return nil, errs.New(errs.ErrConfiguration, "chave %s do segredo não é texto", k)
		}
		out[k] = s
	}
	logger.Log.Infow("Credenciais carregadas do vault", "chaves", len(out))
	return out, nil
}

// NoOpVaultClient é usado quando o vault está desabilitado.
type NoOpVaultClient struct{}

func (NoOpVaultClient) GetCredentials(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
