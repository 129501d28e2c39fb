package flow

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/dialog/nodes"
)

// Factory builds a node from its declaration. Factories own the decoding of
// the per-node config map.
type Factory func(spec NodeSpec) (dialog.Node, error)

// Registry maps node type tags to factories. The zero value is unusable; use
// NewRegistry or DefaultRegistry.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in node type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterType("text_response", textResponseFactory)
	r.RegisterType("intent_prompt", intentPromptFactory)
	r.RegisterType("text_condition", textConditionFactory)
	r.RegisterType("result_condition", resultConditionFactory)
	r.RegisterType("expr_condition", exprConditionFactory)
	r.RegisterType("inputs_collector", inputsCollectorFactory)
	return r
}

// RegisterType installs a factory for a type tag. Later registrations win,
// so applications can shadow built-in types.
func (r *Registry) RegisterType(typeTag string, factory Factory) {
	r.factories[typeTag] = factory
}

// Build constructs the node declared by spec.
func (r *Registry) Build(spec NodeSpec) (dialog.Node, error) {
	factory, ok := r.factories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("node %q: unknown node type %q", spec.Name, spec.Type)
	}
	node, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", spec.Name, err)
	}
	return node, nil
}

// decodeConfig maps the raw per-node config onto a typed config struct.
func decodeConfig(spec NodeSpec, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(spec.Config); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func textResponseFactory(spec NodeSpec) (dialog.Node, error) {
	var cfg struct {
		Responses []string `mapstructure:"responses"`
	}
	if err := decodeConfig(spec, &cfg); err != nil {
		return nil, err
	}
	return nodes.NewTextResponse(spec.Name, cfg.Responses, spec.Next...), nil
}

func intentPromptFactory(spec NodeSpec) (dialog.Node, error) {
	var cfg struct {
		Intents []string `mapstructure:"intents"`
		Prompts []string `mapstructure:"prompts"`
	}
	if err := decodeConfig(spec, &cfg); err != nil {
		return nil, err
	}
	return nodes.NewIntentPrompt(spec.Name, cfg.Intents, cfg.Prompts, spec.Next...), nil
}

func textConditionFactory(spec NodeSpec) (dialog.Node, error) {
	var cfg struct {
		Conditions map[string]string `mapstructure:"conditions"`
	}
	if err := decodeConfig(spec, &cfg); err != nil {
		return nil, err
	}
	return nodes.NewTextCondition(spec.Name, cfg.Conditions, spec.Next...), nil
}

func resultConditionFactory(spec NodeSpec) (dialog.Node, error) {
	cfg := struct {
		Conditions map[string]string `mapstructure:"conditions"`
		Consume    bool              `mapstructure:"consume"`
	}{Consume: true}
	if err := decodeConfig(spec, &cfg); err != nil {
		return nil, err
	}
	node := nodes.NewResultCondition(spec.Name, cfg.Conditions, spec.Next...)
	node.Consume = cfg.Consume
	return node, nil
}

func exprConditionFactory(spec NodeSpec) (dialog.Node, error) {
	var cfg struct {
		Expression string            `mapstructure:"expression"`
		Routes     map[string]string `mapstructure:"routes"`
	}
	if err := decodeConfig(spec, &cfg); err != nil {
		return nil, err
	}
	if cfg.Expression == "" {
		return nil, fmt.Errorf("expr_condition requires an expression")
	}
	return nodes.NewExprCondition(spec.Name, cfg.Expression, cfg.Routes, spec.Next...), nil
}

func inputsCollectorFactory(spec NodeSpec) (dialog.Node, error) {
	applyEntityMapDefaults(spec.Config)

	var cfg struct {
		Inputs []nodes.InputConfig `mapstructure:"inputs"`
	}
	if err := decodeConfig(spec, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("inputs_collector requires at least one input")
	}

	node := nodes.NewInputsCollector(spec.Name, cfg.Inputs, spec.Next...)
	for _, escape := range spec.EscapeIntentActions {
		node.EscapeActions = append(node.EscapeActions, nodes.EscapeAction{
			Intent: escape.Intent,
			Next:   escape.Next,
		})
	}
	return node, nil
}

// applyEntityMapDefaults defaults multiple and drop to true on entity
// mappings that leave them unset. The zero value of a bool cannot tell
// "absent" from "false", so this runs on the raw maps before decoding.
func applyEntityMapDefaults(config map[string]any) {
	inputs, _ := config["inputs"].([]any)
	for _, rawInput := range inputs {
		input, _ := rawInput.(map[string]any)
		maps, _ := input["maps"].([]any)
		for _, rawMap := range maps {
			mapping, _ := rawMap.(map[string]any)
			if mapping == nil || mapping["type"] != nodes.FromEntity {
				continue
			}
			if _, ok := mapping["multiple"]; !ok {
				mapping["multiple"] = true
			}
			if _, ok := mapping["drop"]; !ok {
				mapping["drop"] = true
			}
		}
	}
}
