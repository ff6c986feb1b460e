package config

// DiffConfig bounds the line summary attached to change events
type DiffConfig struct {
	MaxLines      int `json:"max_lines,omitempty" yaml:"max_lines,omitempty" validate:"omitempty,min=1"`
	MaxLineLength int `json:"max_line_length,omitempty" yaml:"max_line_length,omitempty" validate:"omitempty,min=10"`
}

// NewDefaultDiffConfig creates default diff configuration
func NewDefaultDiffConfig() DiffConfig {
	return DiffConfig{
		MaxLines:      DefaultDiffMaxLines,
		MaxLineLength: DefaultDiffMaxLineLength,
	}
}
