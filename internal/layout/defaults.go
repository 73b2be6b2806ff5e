package layout

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var defaultNodes = mustLoadDefaults(defaultsYAML)

func mustLoadDefaults(raw []byte) map[Type]yaml.Node {
	var nodes map[Type]yaml.Node
	if err := yaml.Unmarshal(raw, &nodes); err != nil {
		panic(fmt.Sprintf("layout: invalid block defaults: %v", err))
	}
	for _, t := range Types {
		if _, ok := nodes[t]; !ok {
			panic(fmt.Sprintf("layout: missing defaults for block type %q", t))
		}
	}
	return nodes
}

// DefaultData returns a fresh copy of the default payload for t.
func DefaultData(t Type) (Data, error) {
	data, err := newData(t)
	if err != nil {
		return nil, err
	}
	node := defaultNodes[t]
	if err := node.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode defaults for %s: %w", t, err)
	}
	return data, nil
}
