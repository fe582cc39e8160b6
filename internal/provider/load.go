package provider

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed configs/*.yaml
var builtinConfigs embed.FS

// Builtin returns the names of the embedded provider packs, sorted.
func Builtin() []string {
	entries, err := builtinConfigs.ReadDir("configs")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Load returns the named built-in provider context.
func Load(name string) (*Context, error) {
	data, err := builtinConfigs.ReadFile("configs/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown provider %q (built-in: %s)", name, strings.Join(Builtin(), ", "))
	}
	return parse(data)
}

// LoadFile reads a provider context from an external YAML rule pack.
func LoadFile(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Context, error) {
	var c Context
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing provider config: %w", err)
	}
	for i := range c.Handlers {
		if c.Handlers[i].Order == "" {
			c.Handlers[i].Order = OrderAfter
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
