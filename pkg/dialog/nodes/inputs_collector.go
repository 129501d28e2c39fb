package nodes

import (
	"context"
	"math/rand"
	"reflect"
	"slices"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// Input mapping sources.
const (
	FromText   = "text"
	FromIntent = "intent"
	FromEntity = "entity"
)

// stepCountKey is the node-data entry holding the per-input prompt counters.
const stepCountKey = "step_count"

// InputMapping declares one way to fill an input slot from the current
// message.
type InputMapping struct {
	// Type is the source: text, intent or entity.
	Type string `mapstructure:"type"`

	// Values restricts which intents/entities map to this slot. Required for
	// entity mappings; an empty list on an intent mapping accepts any intent.
	Values []string `mapstructure:"values"`

	// AlwaysAsk forces at least one explicit prompt turn before this mapping
	// may fill the slot. Text mappings are always-ask by nature.
	AlwaysAsk bool `mapstructure:"always_ask"`

	// Multiple collects every matching entity instance into a list.
	Multiple bool `mapstructure:"multiple"`

	// Drop removes consumed entity instances from the message so later slots
	// cannot re-use them.
	Drop bool `mapstructure:"drop"`
}

// ValueValidator vets an extracted value. Returning ok=false rejects it.
type ValueValidator func(source string, value any, sess dialog.Session) (any, bool)

// FormValidator runs over the whole collected map after each fill pass and
// may remove (invalidate) entries, forcing them to be re-asked.
type FormValidator func(collected map[string]any, sess dialog.Session) map[string]any

// OverrideHook observes a previously collected value being replaced.
type OverrideHook func(input string, oldValue, newValue any, sess dialog.Session)

// EscapeAction routes an interrupting intent to another node mid-collection.
type EscapeAction struct {
	Intent string `mapstructure:"intent"`
	Next   string `mapstructure:"next"`
}

// InputConfig declares one required input slot.
type InputConfig struct {
	Name string `mapstructure:"name"`

	// Maps are tried in declaration order; the first non-empty value wins.
	Maps []InputMapping `mapstructure:"maps"`

	// Prompts ask for the slot; Reprompts (when set) replace them after the
	// first unanswered turn.
	Prompts   []string `mapstructure:"prompts"`
	Reprompts []string `mapstructure:"reprompts"`

	// Default fills the slot without user input once DefaultDelayStep
	// unanswered turns have passed (zero applies it immediately).
	Default          any `mapstructure:"default"`
	DefaultDelayStep int `mapstructure:"default_delay_step"`

	// AlwaysAsk forces one explicit prompt turn before any inferred value is
	// accepted for this slot.
	AlwaysAsk bool `mapstructure:"always_ask"`

	// Optional slots never block completion.
	Optional bool `mapstructure:"optional"`

	// AllowOverride lists the sources allowed to replace an already
	// collected value. Defaults to entity only.
	AllowOverride []string `mapstructure:"allow_override"`

	// Validator vets values extracted for this slot.
	Validator ValueValidator `mapstructure:"-"`
}

// InputsCollector fills a set of input slots over as many turns as needed,
// prompting for whatever is still missing and completing with the collected
// map as its result.
type InputsCollector struct {
	dialog.NodeCore

	Inputs []InputConfig

	// EscapeActions interrupt collection when their intent shows up.
	EscapeActions []EscapeAction

	// FormValidator optionally vets the whole form after each fill pass.
	FormValidator FormValidator

	// OverrideHook optionally observes value replacements.
	OverrideHook OverrideHook

	// RecordInterrupted appends a history step for the interrupted activation
	// when an escape intent fires. Off by default; product has not settled
	// whether interruptions count as activations.
	RecordInterrupted bool
}

// NewInputsCollector creates a slot-filling node.
func NewInputsCollector(name string, inputs []InputConfig, next ...string) *InputsCollector {
	for i := range inputs {
		if len(inputs[i].AllowOverride) == 0 {
			inputs[i].AllowOverride = []string{FromEntity}
		}
		for j := range inputs[i].Maps {
			if inputs[i].Maps[j].Type == FromText {
				inputs[i].Maps[j].AlwaysAsk = true
			}
		}
	}
	return &InputsCollector{
		NodeCore: dialog.NewNodeCore(name, next...),
		Inputs:   inputs,
	}
}

// References includes the escape targets.
func (n *InputsCollector) References() []string {
	refs := n.NodeCore.References()
	for _, escape := range n.EscapeActions {
		refs = append(refs, escape.Next)
	}
	return refs
}

// OnEnter resets the per-input prompt counters and seeds already-known
// parameters as the initial collected map.
func (n *InputsCollector) OnEnter(ctx context.Context, sess dialog.Session) (*domain.NodeResult, error) {
	counts := make(map[string]any, len(n.Inputs))
	for _, input := range n.Inputs {
		counts[input.Name] = 0
	}
	data := sess.Data(n.Name())
	data[stepCountKey] = counts
	sess.SetData(n.Name(), data)

	collected := make(map[string]any)
	if params, ok := sess.Params(n.Name()).(map[string]any); ok {
		for k, v := range params {
			collected[k] = v
		}
	}
	sess.SetResult(n.Name(), collected)
	return nil, nil
}

func (n *InputsCollector) OnMessage(ctx context.Context, sess dialog.Session) (domain.NodeResult, error) {
	msg := sess.Turn().Message

	for _, escape := range n.EscapeActions {
		if msg.Intent == "" || msg.Intent != escape.Intent {
			continue
		}
		// Rewind the prompt counter so the interrupted question does not
		// count as unanswered, and clear the intent so it cannot re-trigger
		// endlessly.
		if current := n.missingInput(n.collected(sess)); current != nil {
			counts := n.stepCounts(sess)
			if c := asInt(counts[current.Name]); c > 0 {
				counts[current.Name] = c - 1
			}
		}
		msg.Intent = ""
		if n.RecordInterrupted {
			sess.AddStep(domain.NewActionStep(n.Name(), domain.StatusEscape))
		}
		return domain.Escape(escape.Next, n.Name()), nil
	}

	collected := n.fillInputs(sess, msg)

	if n.FormValidator != nil {
		collected = n.FormValidator(collected, sess)
		if collected == nil {
			collected = make(map[string]any)
		}
		sess.SetResult(n.Name(), collected)
	}

	missing := n.missingInput(collected)
	if missing == nil {
		return domain.Done(n.NextNodes...), nil
	}

	n.prompt(*missing, sess)
	counts := n.stepCounts(sess)
	counts[missing.Name] = asInt(counts[missing.Name]) + 1

	return domain.Waiting(n.Name()), nil
}

// OnExit drops the prompt counters; the collected map stays as the result.
func (n *InputsCollector) OnExit(ctx context.Context, sess dialog.Session) (*domain.NodeResult, error) {
	data := sess.Data(n.Name())
	delete(data, stepCountKey)
	sess.SetData(n.Name(), data)
	return nil, nil
}

// fillInputs tries to fill every not-yet-collected slot from the current
// message, in declaration order, first non-empty mapping wins.
func (n *InputsCollector) fillInputs(sess dialog.Session, msg *domain.Message) map[string]any {
	collected := n.collected(sess)
	counts := n.stepCounts(sess)

	for _, input := range n.Inputs {
		asked := asInt(counts[input.Name]) > 0
		if !asked && input.AlwaysAsk {
			continue
		}

		var value any
		var source string
		for _, mapping := range input.Maps {
			if !asked && mapping.AlwaysAsk {
				continue
			}

			var raw any
			switch mapping.Type {
			case FromText:
				if msg.Text != "" {
					raw = msg.Text
				}
			case FromIntent:
				raw = matchIntent(mapping, msg)
			case FromEntity:
				raw = extractEntities(mapping, msg)
			}

			value = n.acceptValue(input, mapping, raw, sess)
			if value != nil {
				source = mapping.Type
				break
			}
		}

		if value == nil {
			continue
		}

		if old, exists := collected[input.Name]; exists {
			if slices.Contains(input.AllowOverride, source) && !reflect.DeepEqual(old, value) {
				if n.OverrideHook != nil {
					n.OverrideHook(input.Name, old, value, sess)
				}
				collected[input.Name] = value
			}
			// Otherwise the first value wins.
		} else {
			collected[input.Name] = value
		}
	}

	sess.SetResult(n.Name(), collected)
	return collected
}

// acceptValue vets an extracted value, or falls back to the input's delayed
// default when nothing was extracted.
func (n *InputsCollector) acceptValue(input InputConfig, mapping InputMapping, raw any, sess dialog.Session) any {
	if raw != nil {
		if input.Validator == nil {
			return raw
		}
		if validated, ok := input.Validator(mapping.Type, raw, sess); ok {
			return validated
		}
		return nil
	}

	if input.Default == nil {
		return nil
	}
	if input.DefaultDelayStep == 0 {
		return input.Default
	}
	if asInt(n.stepCounts(sess)[input.Name]) >= input.DefaultDelayStep {
		return input.Default
	}
	return nil
}

// missingInput returns the first non-optional slot still unfilled.
func (n *InputsCollector) missingInput(collected map[string]any) *InputConfig {
	for i := range n.Inputs {
		if n.Inputs[i].Optional {
			continue
		}
		if _, ok := collected[n.Inputs[i].Name]; !ok {
			return &n.Inputs[i]
		}
	}
	return nil
}

// prompt asks for a slot, switching to the reprompts after the first turn.
func (n *InputsCollector) prompt(input InputConfig, sess dialog.Session) {
	prompts := input.Prompts
	if len(input.Reprompts) > 0 && asInt(n.stepCounts(sess)[input.Name]) > 0 {
		prompts = input.Reprompts
	}
	if len(prompts) == 0 {
		return
	}
	sess.AddResponse(domain.NewTextResponse(prompts[rand.Intn(len(prompts))]))
}

// collected returns the live collected map stored as this node's result.
func (n *InputsCollector) collected(sess dialog.Session) map[string]any {
	if m, ok := sess.Result(n.Name()).(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	sess.SetResult(n.Name(), m)
	return m
}

// stepCounts returns the live prompt-counter map from the node data.
func (n *InputsCollector) stepCounts(sess dialog.Session) map[string]any {
	data := sess.Data(n.Name())
	if m, ok := data[stepCountKey].(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	data[stepCountKey] = m
	return m
}

// matchIntent returns the message intent when the mapping accepts it.
func matchIntent(mapping InputMapping, msg *domain.Message) any {
	if msg.Intent == "" {
		return nil
	}
	if len(mapping.Values) == 0 || slices.Contains(mapping.Values, msg.Intent) {
		return msg.Intent
	}
	return nil
}

// extractEntities pulls matching entities off the message. With Drop set the
// consumed instances are removed so later slots cannot reference them.
func extractEntities(mapping InputMapping, msg *domain.Message) any {
	if len(msg.Entities) == 0 || len(mapping.Values) == 0 {
		return nil
	}

	extracted := make(map[string]any)
	dropped := make(map[int]bool)

	for i, entity := range msg.Entities {
		if !slices.Contains(mapping.Values, entity.Entity) {
			continue
		}
		if prev, ok := extracted[entity.Entity]; ok {
			if !mapping.Multiple {
				continue
			}
			extracted[entity.Entity] = append(prev.([]any), entity.Value)
		} else if mapping.Multiple {
			extracted[entity.Entity] = []any{entity.Value}
		} else {
			extracted[entity.Entity] = entity.Value
		}
		if mapping.Drop {
			dropped[i] = true
		}
	}

	if len(dropped) > 0 {
		kept := make([]domain.Entity, 0, len(msg.Entities)-len(dropped))
		for i, entity := range msg.Entities {
			if !dropped[i] {
				kept = append(kept, entity)
			}
		}
		msg.Entities = kept
	}

	if len(extracted) == 0 {
		return nil
	}
	if len(mapping.Values) == 1 {
		return extracted[mapping.Values[0]]
	}
	return extracted
}

// asInt reads a counter that may have round-tripped through JSON.
func asInt(v any) int {
	switch value := v.(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}
