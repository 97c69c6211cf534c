package cascade

// Overrides is the structured caller-override form: a cascade-wide block
// plus per-cell (phase) blocks, keyed by phase name, with "default"
// applying to every phase that has no specific entry (§4.9 step 3,
// §6.1's PhaseConfig override surface).
type Overrides struct {
	CascadeOverrides map[string]any            `json:"cascade_overrides,omitempty" yaml:"cascade_overrides,omitempty"`
	CellOverrides    map[string]map[string]any `json:"cell_overrides,omitempty" yaml:"cell_overrides,omitempty"`
}

// applyOverrides deep-merges o into cfg, matching §4.9 step 3 exactly:
// cascade-level keys (takes/factor, evaluator, model swaps, ward
// adjustments, context policy) land on the Config itself; cell overrides
// land on the named phase, falling back to "default" for every phase
// without a specific entry. Both the legacy flat form (everything in
// CascadeOverrides, no per-cell structure) and the structured form are
// handled by the same merge: a caller using the legacy form simply never
// populates CellOverrides.
func applyOverrides(cfg Config, o Overrides) Config {
	merged := mergeOverrides(configToMap(cfg), o.CascadeOverrides)
	result := mapToConfig(merged, cfg)

	if len(o.CellOverrides) == 0 {
		return result
	}

	phases := make([]PhaseConfig, len(result.Phases))
	def := o.CellOverrides["default"]
	for i, p := range result.Phases {
		cellMap := phaseToMap(p)
		cellMap = mergeOverrides(cellMap, def)
		if specific, ok := o.CellOverrides[p.Name]; ok {
			cellMap = mergeOverrides(cellMap, specific)
		}
		phases[i] = mapToPhase(cellMap, p)
	}
	result.Phases = phases
	return result
}

// mergeOverrides recursively deep-merges src into dst: maps merge
// key-by-key, any other value in src replaces dst's value outright. Both
// arguments are always treated as immutable; a fresh map is returned.
func mergeOverrides(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	out := make(map[string]any, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if existing, ok := out[k]; ok {
			existingMap, existingIsMap := existing.(map[string]any)
			incomingMap, incomingIsMap := v.(map[string]any)
			if existingIsMap && incomingIsMap {
				out[k] = mergeOverrides(existingMap, incomingMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// configToMap exposes only the override-eligible cascade-level fields
// named in §4.9 step 3 (takes/factor, evaluator, model is per-phase so it
// is handled via cell overrides, ward adjustments are per-phase, context
// policy is auto_context/memory).
func configToMap(cfg Config) map[string]any {
	m := map[string]any{
		"token_budget": cfg.TokenBudget,
		"max_parallel": cfg.MaxParallel,
	}
	if cfg.Takes != nil {
		m["takes"] = soundingsSpecToMap(*cfg.Takes)
	}
	if cfg.AutoContext != nil {
		m["auto_context"] = cfg.AutoContext
	}
	if cfg.Memory != nil {
		m["memory"] = cfg.Memory
	}
	return m
}

func mapToConfig(m map[string]any, base Config) Config {
	cfg := base
	if v, ok := asInt(m["token_budget"]); ok {
		cfg.TokenBudget = v
	}
	if v, ok := asInt(m["max_parallel"]); ok {
		cfg.MaxParallel = v
	}
	if v, ok := m["takes"].(map[string]any); ok {
		spec := mapToSoundingsSpec(v)
		cfg.Takes = &spec
	}
	if v, ok := m["auto_context"].(map[string]any); ok {
		cfg.AutoContext = v
	}
	if v, ok := m["memory"].(map[string]any); ok {
		cfg.Memory = v
	}
	return cfg
}

// phaseToMap exposes the override-eligible per-phase fields: model swaps,
// soundings/takes/factor, and ward adjustments.
func phaseToMap(p PhaseConfig) map[string]any {
	m := map[string]any{
		"model": p.Model,
	}
	if p.Soundings != nil {
		m["soundings"] = soundingsSpecToMap(*p.Soundings)
	}
	return m
}

func mapToPhase(m map[string]any, base PhaseConfig) PhaseConfig {
	p := base
	if v, ok := m["model"].(string); ok && v != "" {
		p.Model = v
	}
	if v, ok := m["soundings"].(map[string]any); ok {
		spec := mapToSoundingsSpec(v)
		p.Soundings = &spec
	}
	return p
}

func soundingsSpecToMap(s SoundingsSpec) map[string]any {
	return map[string]any{
		"factor":       s.Factor,
		"evaluator":    s.Evaluator,
		"mutate":       s.Mutate,
		"max_parallel": s.MaxParallel,
	}
}

func mapToSoundingsSpec(m map[string]any) SoundingsSpec {
	var s SoundingsSpec
	if v, ok := asInt(m["factor"]); ok {
		s.Factor = v
	}
	if v, ok := m["evaluator"].(string); ok {
		s.Evaluator = v
	}
	if v, ok := m["mutate"].(string); ok {
		s.Mutate = v
	}
	if v, ok := asInt(m["max_parallel"]); ok {
		s.MaxParallel = v
	}
	return s
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
