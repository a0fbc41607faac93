package templating

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateTooLarge = errors.New("template too large")
	ErrUnknownFormat    = errors.New("unknown template format")
)

// Template is a parsed template file. Templates are immutable once loaded.
type Template struct {
	Name   string
	Format Format
	Source string
	chunks []Chunk
}

// TemplateManager is the central controller for the templating engine.
// It loads every template file from its directory, keeps them parsed, and
// renders them by name. All methods are concurrent-safe.
type TemplateManager struct {
	logger      *slog.Logger
	config      *TemplateConfig
	templates   map[string]*Template
	templateDir string
	mu          sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager
// reading from the "templates" subdirectory of dataDir, which is created if
// missing. It performs an initial Refresh to load all templates.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, dataDir string) (*TemplateManager, error) {
	templateDir := filepath.Join(dataDir, "templates")
	if err := os.MkdirAll(templateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create template directory: %w", err)
	}

	tm := &TemplateManager{
		logger:      logger,
		config:      config,
		templates:   map[string]*Template{},
		templateDir: templateDir,
	}

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "dir", templateDir)
	return tm, nil
}

// SetConfig applies a new configuration. Templates over the new size limit
// stay loaded until the next Refresh.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// Refresh reloads all templates from the filesystem. Files without a
// recognised ".tmpl.<format>" suffix are ignored, and files over
// MaxTemplateBytes are skipped with a warning. The previous set is kept if
// the directory cannot be read.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.logger.Info("Loading template files...")
	entries, err := os.ReadDir(tm.templateDir)
	if err != nil {
		tm.logger.Error("failed to read template directory", "error", err)
		return fmt.Errorf("failed to read template directory: %w", err)
	}

	loaded := make(map[string]*Template, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		format, ok := FormatFromName(name)
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			tm.logger.Warn("Skipping unreadable template", "name", name, "error", err)
			continue
		}
		if limit := tm.config.MaxTemplateBytes; limit > 0 && info.Size() > limit {
			tm.logger.Warn("Skipping oversized template", "name", name, "size", info.Size(), "limit", limit)
			continue
		}

		content, err := os.ReadFile(filepath.Join(tm.templateDir, name))
		if err != nil {
			tm.logger.Warn("Skipping unreadable template", "name", name, "error", err)
			continue
		}
		source := string(content)
		loaded[name] = &Template{Name: name, Format: format, Source: source, chunks: Parse(source)}
	}

	if len(loaded) == 0 {
		tm.logger.Warn("No template files found", "dir", tm.templateDir)
	}
	tm.templates = loaded
	tm.logger.Info("Loaded template files", "count", len(loaded))
	return nil
}

// Lookup returns a loaded template by file name.
func (tm *TemplateManager) Lookup(name string) (*Template, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.templates[name]
	return t, ok
}

// HasTemplate reports whether a template with the given name is loaded.
func (tm *TemplateManager) HasTemplate(name string) bool {
	_, ok := tm.Lookup(name)
	return ok
}

// Execute renders the named template against doc, writing the output to w
// in the template's format. An empty name renders nothing.
func (tm *TemplateManager) Execute(w io.Writer, name string, doc any) error {
	if name == "" {
		return nil
	}
	tm.mu.RLock()
	t, ok := tm.templates[name]
	config := *tm.config
	tm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return renderFormat(w, Renderer{MaxSteps: config.MaxSteps}, t.chunks, doc, t.Format, config.SanitizeHTML)
}

// ExecuteTemplateString parses and renders a raw template without saving it.
// This is ideal for testing or previewing templates.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, format Format, doc any) error {
	config := tm.GetConfig()
	if limit := config.MaxTemplateBytes; limit > 0 && int64(len(content)) > limit {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTemplateTooLarge, len(content), limit)
	}
	return renderFormat(w, Renderer{MaxSteps: config.MaxSteps}, Parse(content), doc, format, config.SanitizeHTML)
}

// GetTemplateNames returns the sorted names of the loaded templates.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	names := make([]string, 0, len(tm.templates))
	for name := range tm.templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}
