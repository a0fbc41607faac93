package templating

// TemplateConfig holds all configuration options for the templating engine.
type TemplateConfig struct {
	// MaxSteps bounds the chunks processed by one render, loop iterations
	// included. A template looping over a very large array fails with
	// ErrStepLimit instead of running on. Zero disables the bound.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`

	// MaxTemplateBytes is the largest template accepted, both from the
	// template directory and as an ad hoc string.
	MaxTemplateBytes int64 `json:"max_template_bytes" yaml:"max_template_bytes"`

	// SanitizeHTML runs the output of .tmpl.html templates through an HTML
	// sanitizer. Markdown output is always sanitized.
	SanitizeHTML bool `json:"sanitize_html" yaml:"sanitize_html"`
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() TemplateConfig {
	return TemplateConfig{
		MaxSteps:         1_000_000,
		MaxTemplateBytes: 1048576, // 1MB
		SanitizeHTML:     true,
	}
}
