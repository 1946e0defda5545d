package detect

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

//go:embed signatures.yaml
var builtinCatalog []byte

type catalog struct {
	Signatures []Signature `yaml:"signatures"`
}

func ParseCatalog(data []byte) ([]Signature, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse signature catalog: %w", err)
	}
	return c.Signatures, nil
}

// LoadCatalog reads signatures from a YAML file. An empty path yields the
// built-in catalog.
func LoadCatalog(path string) ([]Signature, error) {
	if path == "" {
		return ParseCatalog(builtinCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signature catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Default compiles the built-in catalog.
func Default() *Matcher {
	sigs, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(err)
	}
	m, err := NewMatcher(sigs)
	if err != nil {
		panic(err)
	}
	return m
}
