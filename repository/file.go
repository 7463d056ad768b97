package repository

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is a repository loaded once from a YAML document of the form
//
//	Networking:
//	  InterfaceNamePrefix: rmnet
//	  MTU: 1500
//	Timeouts:
//	  query-dns: 10000
type File struct {
	Map
}

// LoadFile reads path. A missing file yields an empty repository.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{Map: Map{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: read %s: %w", path, err)
	}
	return ParseFile(data)
}

// ParseFile decodes a YAML document. Scalars of any type are kept in their
// textual form.
func ParseFile(data []byte) (*File, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("repository: decode: %w", err)
	}
	m := make(Map, len(raw))
	for group, values := range raw {
		m[group] = make(map[string]string, len(values))
		for key, v := range values {
			if v == nil {
				continue
			}
			m[group][key] = fmt.Sprint(v)
		}
	}
	return &File{Map: m}, nil
}
