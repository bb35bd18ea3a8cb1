// AngelaMos | 2026
// matrix.go

package access

import (
	"errors"
	"fmt"
)

type (
	FeatureTable  map[Feature]map[Action]Grant
	ResourceTable map[ResourceType]map[Action]Grant
)

// TierDefinition declares everything one tier grants. Inherits lists lower
// tiers whose tables are merged underneath this tier's own entries; when two
// inherited tiers declare the same key, the one listed later wins. Limits are
// never inherited.
type TierDefinition struct {
	Tier      Tier
	Features  FeatureTable
	Resources ResourceTable
	Limits    TierLimits
	Inherits  []Tier
}

// ResolvedPermissions is a tier's inheritance-merged view.
type ResolvedPermissions struct {
	Tier      Tier          `json:"tier"`
	Features  FeatureTable  `json:"features"`
	Resources ResourceTable `json:"resources"`
	Limits    TierLimits    `json:"limits"`
}

// Matrix is the validated, immutable permission matrix. Inheritance is merged
// once at construction so lookups are flat map reads.
type Matrix struct {
	definitions map[Tier]TierDefinition
	resolved    map[Tier]ResolvedPermissions
}

func NewMatrix(defs ...TierDefinition) (*Matrix, error) {
	m := &Matrix{
		definitions: make(map[Tier]TierDefinition, len(defs)),
		resolved:    make(map[Tier]ResolvedPermissions, len(defs)),
	}

	for _, def := range defs {
		if !def.Tier.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidMatrix, ErrUnknownTier, def.Tier)
		}
		if _, dup := m.definitions[def.Tier]; dup {
			return nil, fmt.Errorf("%w: tier %s declared twice", ErrInvalidMatrix, def.Tier)
		}
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("%w: tier %s: %w", ErrInvalidMatrix, def.Tier, err)
		}
		m.definitions[def.Tier] = def
	}

	if err := m.validateInheritance(); err != nil {
		return nil, err
	}

	if err := m.validateLimitMonotonicity(); err != nil {
		return nil, err
	}

	for _, tier := range tierOrder {
		def, ok := m.definitions[tier]
		if !ok {
			continue
		}
		m.resolved[tier] = m.merge(def)
	}

	return m, nil
}

func (m *Matrix) Definition(tier Tier) (TierDefinition, bool) {
	def, ok := m.definitions[tier]
	return def, ok
}

// customConditionNames lists every custom condition referenced anywhere.
func (m *Matrix) customConditionNames() []string {
	seen := make(map[string]struct{})
	var names []string
	collect := func(g Grant) {
		for name := range g.Conditions {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	for _, def := range m.definitions {
		for _, actions := range def.Features {
			for _, g := range actions {
				collect(g)
			}
		}
		for _, actions := range def.Resources {
			for _, g := range actions {
				collect(g)
			}
		}
	}
	return names
}

func (m *Matrix) merge(def TierDefinition) ResolvedPermissions {
	out := ResolvedPermissions{
		Tier:      def.Tier,
		Features:  make(FeatureTable),
		Resources: make(ResourceTable),
		Limits:    def.Limits,
	}

	for _, parent := range def.Inherits {
		inherited := m.resolved[parent]
		mergeTable(out.Features, inherited.Features)
		mergeTable(out.Resources, inherited.Resources)
	}

	mergeTable(out.Features, def.Features)
	mergeTable(out.Resources, def.Resources)

	return out
}

func mergeTable[K comparable](dst, src map[K]map[Action]Grant) {
	for key, actions := range src {
		target, ok := dst[key]
		if !ok {
			target = make(map[Action]Grant, len(actions))
			dst[key] = target
		}
		for action, g := range actions {
			target[action] = g.clone()
		}
	}
}

func cloneTable[K comparable](src map[K]map[Action]Grant) map[K]map[Action]Grant {
	out := make(map[K]map[Action]Grant, len(src))
	mergeTable(out, src)
	return out
}

func validateDefinition(def TierDefinition) error {
	var errs []error

	for feature, actions := range def.Features {
		if !feature.Valid() {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownFeature, feature))
		}
		errs = append(errs, validateActions(string(feature), actions)...)
	}

	for resource, actions := range def.Resources {
		if !resource.Valid() {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownResource, resource))
		}
		errs = append(errs, validateActions(string(resource), actions)...)
	}

	for _, lt := range limitOrder {
		if v, _ := def.Limits.Get(lt); v < Unlimited {
			errs = append(errs, fmt.Errorf("limit %s: negative value %d", lt, v))
		}
	}

	return errors.Join(errs...)
}

func validateActions(owner string, actions map[Action]Grant) []error {
	var errs []error
	for action, g := range actions {
		if !action.Valid() {
			errs = append(errs, fmt.Errorf("%s: %w: %q", owner, ErrUnknownAction, action))
		}
		if !g.Permission.Valid() {
			errs = append(errs, fmt.Errorf("%s.%s: %w: %d", owner, action, ErrUnknownPermission, int(g.Permission)))
		}
		if !g.TimeRestriction.Valid() {
			errs = append(errs, fmt.Errorf("%s.%s: %w: %q", owner, action, ErrUnknownWindow, g.TimeRestriction))
		}
		if g.UsageLimit != nil && *g.UsageLimit < 0 {
			errs = append(errs, fmt.Errorf("%s.%s: negative usage limit", owner, action))
		}
	}
	return errs
}

func (m *Matrix) validateInheritance() error {
	for tier, def := range m.definitions {
		for _, parent := range def.Inherits {
			if _, ok := m.definitions[parent]; !ok {
				return fmt.Errorf("%w: tier %s inherits undeclared tier %q", ErrInvalidMatrix, tier, parent)
			}
			if parent.Rank() >= tier.Rank() {
				return fmt.Errorf("%w: tier %s may only inherit lower tiers, got %s", ErrInvalidMatrix, tier, parent)
			}
		}
	}
	return nil
}

// validateLimitMonotonicity rejects a higher tier capping lower than a lower
// tier. Once a limit is unlimited it must stay unlimited.
func (m *Matrix) validateLimitMonotonicity() error {
	var prev *TierDefinition
	for _, tier := range tierOrder {
		def, ok := m.definitions[tier]
		if !ok {
			continue
		}
		if prev != nil {
			for _, lt := range limitOrder {
				lower, _ := prev.Limits.Get(lt)
				higher, _ := def.Limits.Get(lt)
				if IsUnlimited(higher) {
					continue
				}
				if IsUnlimited(lower) || higher < lower {
					return fmt.Errorf(
						"%w: %s limit %s=%d is below %s limit %d",
						ErrInvalidMatrix, tier, lt, higher, prev.Tier, lower,
					)
				}
			}
		}
		d := def
		prev = &d
	}
	return nil
}
