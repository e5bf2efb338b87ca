package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrimPackagePath(t *testing.T) {
	tests := map[string]string{
		"github.com/lockwhz/bitbucket-secrets-scan/internal/cloner.(*Cloner).Run": "(*Cloner).Run",
		"main.main": "main",
		"plain":     "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, trimPackagePath(in), in)
	}
}

func TestLogIsUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Log.Infow("sem init", "k", "v")
		Trace("teste", time.Now())
		TraceAuto()()
	})
}
