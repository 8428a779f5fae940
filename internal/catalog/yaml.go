package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog extension format. Operators add platform
// operations without code changes by shipping a YAML file next to the
// server configuration.
type File struct {
	Domains    []DomainInfo `yaml:"domains"`
	Operations []Operation  `yaml:"operations"`
}

// LoadYAML merges domain and operation definitions from a reader.
func (r *Registry) LoadYAML(reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	for _, info := range file.Domains {
		if info.Domain == "" {
			return fmt.Errorf("catalog domain entry missing domain name")
		}
		r.RegisterDomain(info)
	}
	for _, op := range file.Operations {
		if err := r.Register(op); err != nil {
			return err
		}
	}
	return nil
}

// LoadYAMLFile merges a catalog extension file from disk.
func (r *Registry) LoadYAMLFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return r.LoadYAML(f)
}
