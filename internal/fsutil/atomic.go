// Package fsutil reúne a escrita atômica usada por todo artefato que o pipeline
// grava em disco (relatório, resumo do clone, estado dos repositórios).
package fsutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
)

// WriteFileAtomic grava via write num arquivo temporário do mesmo diretório e só
// então o renomeia para path. Se write falhar (ou o processo morrer no meio), o
// arquivo anterior continua intacto e o temporário é removido.
func WriteFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.ErrFilesystem, err, "criar diretório %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.Wrap(errs.ErrFilesystem, err, "criar arquivo temporário em %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("gerar conteúdo de %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return errs.Wrap(errs.ErrFilesystem, err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.ErrFilesystem, err, "fechar %s", tmpName)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errs.Wrap(errs.ErrFilesystem, err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errs.Wrap(errs.ErrFilesystem, err, "renomear %s para %s", tmpName, path)
	}
	return nil
}

// WriteJSONAtomic serializa v com indentação e grava atomicamente.
func WriteJSONAtomic(path string, v any) error {
	return WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// ReadJSON decodifica path em v. Devolve os.ErrNotExist embrulhado quando o
// arquivo não existe, para o chamador decidir se isso é fatal.
func ReadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decodificar %s: %w", path, err)
	}
	return nil
}
