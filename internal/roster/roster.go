// Package roster loads children rosters from YAML files.
package roster

import (
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/voicetask/internal/domain"
	"gopkg.in/yaml.v3"
)

// File is the on-disk roster layout:
//
//	children:
//	  - id: "1"
//	    name: Emma
type File struct {
	Children []Entry `yaml:"children"`
}

// Entry is one child of a roster file.
type Entry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Load reads and validates the roster at path.
func Load(path string) ([]domain.Child, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	children, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return children, nil
}

// Parse decodes a roster document. Ids must be unique and names non-empty.
func Parse(data []byte) ([]domain.Child, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	seen := make(map[string]bool, len(f.Children))
	children := make([]domain.Child, 0, len(f.Children))
	for i, e := range f.Children {
		id, name := strings.TrimSpace(e.ID), strings.TrimSpace(e.Name)
		if id == "" || name == "" {
			return nil, fmt.Errorf("child %d: id and name are required", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("child %d: duplicate id %q", i, id)
		}
		seen[id] = true
		children = append(children, domain.Child{ID: id, Name: name})
	}
	return children, nil
}
