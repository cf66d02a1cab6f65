package prompt

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var personasYAML []byte

var ErrUnknownPersona = errors.New("unknown persona")

type Persona struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

type catalog struct {
	Default  string    `yaml:"default"`
	Personas []Persona `yaml:"personas"`
}

var personas = mustLoadCatalog(personasYAML)

func mustLoadCatalog(data []byte) catalog {
	c, err := loadCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

func loadCatalog(data []byte) (catalog, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return catalog{}, fmt.Errorf("parse personas: %w", err)
	}
	if len(c.Personas) == 0 {
		return catalog{}, errors.New("parse personas: no personas defined")
	}
	if _, ok := c.find(c.Default); !ok {
		return catalog{}, fmt.Errorf("parse personas: default %q is not defined", c.Default)
	}
	return c, nil
}

func (c catalog) find(name string) (Persona, bool) {
	for _, p := range c.Personas {
		if p.Name == name {
			return p, true
		}
	}
	return Persona{}, false
}

// DefaultPersona is used when a case is opened without naming one.
func DefaultPersona() string {
	return personas.Default
}

// LookupPersona resolves a persona by name. An empty name yields the default.
func LookupPersona(name string) (Persona, error) {
	if name == "" {
		name = personas.Default
	}
	p, ok := personas.find(name)
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
	}
	return p, nil
}

// PersonaNames lists the configured personas in catalogue order.
func PersonaNames() []string {
	names := make([]string, 0, len(personas.Personas))
	for _, p := range personas.Personas {
		names = append(names, p.Name)
	}
	return names
}

// resolve never fails: unknown names fall back to the default persona.
func resolve(name string) Persona {
	if p, err := LookupPersona(name); err == nil {
		return p
	}
	p, _ := personas.find(personas.Default)
	return p
}
