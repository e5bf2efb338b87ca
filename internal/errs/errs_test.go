package errs

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesKindAndCause(t *testing.T) {
	err := Wrap(ErrFilesystem, fs.ErrPermission, "gravar %s", "report.json")

	assert.ErrorIs(t, err, ErrFilesystem)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Contains(t, err.Error(), "gravar report.json")
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"configuration", New(ErrConfiguration, "faltando X"), true},
		{"authentication", New(ErrAuthentication, "401"), true},
		{"filesystem", New(ErrFilesystem, "disco cheio"), true},
		{"transient", New(ErrTransient, "503"), false},
		{"external tool", New(ErrExternalTool, "exit 2"), false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "transient", Kind(New(ErrTransient, "timeout")))
	assert.Equal(t, "external_tool", Kind(New(ErrExternalTool, "exit 2")))
	assert.Equal(t, "unknown", Kind(errors.New("x")))
}
