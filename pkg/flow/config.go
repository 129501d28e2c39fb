package flow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is a flow definition: the node declarations, the optional fallback
// node and free-form flow-level settings. YAML is the canonical format; JSON
// documents parse through the same decoder.
type Config struct {
	Nodes    []NodeSpec     `yaml:"nodes"`
	Fallback *NodeSpec      `yaml:"fallback"`
	Settings map[string]any `yaml:"config"`
}

// NodeSpec declares one node instance by type tag plus per-node
// configuration. The tag selects a factory from the registry.
type NodeSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// IntentTrigger maps an intent straight to this node as entry point.
	IntentTrigger string `yaml:"intent_trigger"`

	// Next is the static continuation; a scalar or a list in the document.
	Next StringList `yaml:"next"`

	// Config is the factory-specific configuration, decoded per node type.
	Config map[string]any `yaml:"config"`

	// EscapeIntentActions interrupt a collector node mid-collection.
	EscapeIntentActions []EscapeSpec `yaml:"escape_intent_actions"`
}

// EscapeSpec routes an interrupting intent to another node.
type EscapeSpec struct {
	Intent string `yaml:"intent"`
	Next   string `yaml:"next"`
}

// StringList accepts either a single scalar or a sequence in the document.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		if single != "" {
			*l = StringList{single}
		}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*l = StringList(many)
		return nil
	default:
		return fmt.Errorf("next: expected scalar or sequence, got yaml kind %d", value.Kind)
	}
}
