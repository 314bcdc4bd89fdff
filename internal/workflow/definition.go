package workflow

import (
	"fmt"
	"slices"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
)

// compiledStep pairs a step with its parsed template and capability.
type compiledStep struct {
	Step
	template   *Template
	capability capability.Capability
}

// compiledDefinition is a validated definition ready to execute.
type compiledDefinition struct {
	def   Definition
	steps []compiledStep
}

// compile validates def against the registry.
//
// Every reference must point at the caller input or at a step that runs
// earlier in the same definition, and, when the upstream capability declares
// its outputs, at one of those outputs.
func compile(def Definition, registry *capability.Registry) (*compiledDefinition, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, def.Name)
	}

	cd := &compiledDefinition{def: def}
	earlier := make(map[string]capability.Capability, len(def.Steps))
	all := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		all[s.ID] = true
	}

	for i, s := range def.Steps {
		if !segmentPattern.MatchString(s.ID) {
			return nil, fmt.Errorf("%w: %s step %d has invalid id %q", ErrInvalidDefinition, def.Name, i, s.ID)
		}
		if s.ID == InputRoot {
			return nil, fmt.Errorf("%w: %s step id %q is reserved", ErrInvalidDefinition, def.Name, InputRoot)
		}
		if _, dup := earlier[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s has duplicate step id %q", ErrInvalidDefinition, def.Name, s.ID)
		}

		c, err := registry.Lookup(s.Capability)
		if err != nil {
			return nil, fmt.Errorf("%w: %s step %s: %w", ErrInvalidDefinition, def.Name, s.ID, err)
		}

		tmpl, err := CompileTemplate(s.Input)
		if err != nil {
			return nil, fmt.Errorf("%s step %s: %w", def.Name, s.ID, err)
		}

		for _, ref := range tmpl.References() {
			if err := checkReference(ref, s.ID, earlier, all); err != nil {
				return nil, fmt.Errorf("%s step %s: %w", def.Name, s.ID, err)
			}
		}

		cd.steps = append(cd.steps, compiledStep{Step: s, template: tmpl, capability: c})
		earlier[s.ID] = c
	}

	if cd.def.OutputStep == "" {
		cd.def.OutputStep = def.Steps[len(def.Steps)-1].ID
	} else if !all[cd.def.OutputStep] {
		return nil, fmt.Errorf("%w: %s output_step %q is not a step", ErrInvalidDefinition, def.Name, cd.def.OutputStep)
	}

	return cd, nil
}

func checkReference(ref Path, stepID string, earlier map[string]capability.Capability, all map[string]bool) error {
	root := ref.Root()
	if root == InputRoot {
		return nil
	}

	upstream, ok := earlier[root]
	switch {
	case ok:
	case root == stepID:
		return fmt.Errorf("%w: ${%s} refers to its own step", ErrUnresolvedVariable, ref)
	case all[root]:
		return fmt.Errorf("%w: ${%s} refers to step %q which has not run yet", ErrUnresolvedVariable, ref, root)
	default:
		return fmt.Errorf("%w: ${%s} refers to unknown step %q", ErrUnresolvedVariable, ref, root)
	}

	field := ref.Field()
	outputs := upstream.Outputs()
	if field == "" || len(outputs) == 0 {
		return nil
	}
	if !slices.Contains(outputs, field) {
		return fmt.Errorf("%w: ${%s}: %s does not produce %q", ErrUnresolvedVariable, ref, upstream.Name(), field)
	}
	return nil
}

func (cd *compiledDefinition) summary() Summary {
	return Summary{
		Name:        cd.def.Name,
		Description: cd.def.Description,
		Domain:      cd.def.Domain,
		Tags:        cd.def.Tags,
		Steps:       len(cd.def.Steps),
	}
}
