package tmpsweep

import _ "embed"

// DefaultConfig contains the commented tmpsweep.yml template.
//
//go:embed tmpsweep.yml.example
var DefaultConfig []byte

// ConfigTemplate returns a safe copy of the default configuration template.
func ConfigTemplate() []byte {
	buf := make([]byte, len(DefaultConfig))
	copy(buf, DefaultConfig)
	return buf
}
