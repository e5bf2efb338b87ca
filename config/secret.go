package config

import "encoding/json"

const redacted = "[REDACTED]"

// Secret guarda uma credencial. Qualquer forma de impressão (fmt, JSON, zap)
// devolve um marcador; o valor só sai via Reveal.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Reveal devolve o valor real. Use apenas ao montar requisições.
func (s Secret) Reveal() string { return string(s) }
