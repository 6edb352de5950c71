// Package manifest handles rlox.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest represents an rlox.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Source  Source      `toml:"source"`
	VM      VMConfig    `toml:"vm"`
	REPL    REPLConfig  `toml:"repl"`
	Image   ImageConfig `toml:"image"`

	// Dir is the directory containing the rlox.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures where the program lives.
type Source struct {
	// Entry is the script run when the command line names no file.
	Entry string `toml:"entry"`
}

// VMConfig carries interpreter settings.
type VMConfig struct {
	Trace     bool `toml:"trace"`
	StackSize int  `toml:"stack-size"` // 0 means the interpreter default
}

// REPLConfig carries interactive session settings.
type REPLConfig struct {
	Prompt string `toml:"prompt"`
}

// ImageConfig configures compiled image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// DefaultPrompt is used when rlox.toml sets none.
const DefaultPrompt = "> "

// Load parses an rlox.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "rlox.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.VM.StackSize < 0 {
		return nil, fmt.Errorf("invalid stack-size %d in %s", m.VM.StackSize, path)
	}

	// Defaults
	if m.REPL.Prompt == "" {
		m.REPL.Prompt = DefaultPrompt
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an rlox.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "rlox.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the configured entry script, or
// "" when the manifest names none.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// OutputPath returns the absolute path for compiled image output. When
// [image] sets no output it is derived from the entry script by swapping
// the extension for .rlxc.
func (m *Manifest) OutputPath() string {
	if m.Image.Output != "" {
		return filepath.Join(m.Dir, m.Image.Output)
	}
	entry := m.EntryPath()
	if entry == "" {
		return ""
	}
	return strings.TrimSuffix(entry, filepath.Ext(entry)) + ".rlxc"
}
