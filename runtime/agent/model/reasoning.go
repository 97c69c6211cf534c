package model

import (
	"regexp"
	"strconv"
	"strings"
)

// ReasoningConfig carries the reasoning/thinking-token configuration decoded
// from a model spec string. It is always non-nil once a spec carries a `::`
// section; Enabled is true whenever the config was produced by ParseSpec.
type ReasoningConfig struct {
	Enabled   bool
	Effort    string // one of effortLevels, or "" when unset
	MaxTokens int    // 0 when unset
	Exclude   bool
}

// effortLevels are the recognized reasoning effort tiers.
var effortLevels = map[string]bool{
	"xhigh": true, "high": true, "medium": true,
	"low": true, "minimal": true, "none": true,
}

// enableKeywords just turn reasoning on with provider defaults.
var enableKeywords = map[string]bool{
	"on": true, "true": true, "auto": true, "enabled": true,
}

var specPattern = regexp.MustCompile(`^([a-zA-Z]+)(?:\((\d+)\))?$`)

// ParseSpec splits a model string of the form
//
//	provider/model[:variant][::reasoning_spec[::flags]]
//
// into the clean model identifier to hand to a provider SDK and the optional
// reasoning configuration. The `::` delimiter is chosen specifically so it
// does not collide with single-colon suffixes some providers already use
// (":free", ":thinking", ...). Returns a nil ReasoningConfig when the spec
// carries no `::` section.
func ParseSpec(spec string) (model string, cfg *ReasoningConfig) {
	if spec == "" {
		return spec, nil
	}
	parts := strings.Split(spec, "::")
	if len(parts) == 1 {
		return spec, nil
	}
	model = parts[0]
	cfg = &ReasoningConfig{Enabled: true}
	specParsed := false
	for _, raw := range parts[1:] {
		part := strings.ToLower(strings.TrimSpace(raw))
		if part == "" {
			continue
		}
		if part == "exclude" {
			cfg.Exclude = true
			continue
		}
		if specParsed {
			continue
		}
		specParsed = true
		if m := specPattern.FindStringSubmatch(part); m != nil {
			word, tokens := m[1], m[2]
			switch {
			case effortLevels[word]:
				cfg.Effort = word
				if tokens != "" {
					if n, err := strconv.Atoi(tokens); err == nil {
						cfg.MaxTokens = n
					}
				}
			case enableKeywords[word]:
				// enable with provider defaults, nothing more to record
			default:
				// unrecognized word: ignored, spec stays enabled-only
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			cfg.MaxTokens = n
		}
	}
	return model, cfg
}

// FormatSpec is the inverse of ParseSpec: it reconstructs a model string
// carrying the reasoning configuration, for logging the originally
// requested model alongside the resolved one.
func FormatSpec(model string, cfg *ReasoningConfig) string {
	if cfg == nil {
		return model
	}
	parts := []string{model}
	switch {
	case cfg.Effort != "" && cfg.MaxTokens != 0:
		parts = append(parts, cfg.Effort+"("+strconv.Itoa(cfg.MaxTokens)+")")
	case cfg.Effort != "":
		parts = append(parts, cfg.Effort)
	case cfg.MaxTokens != 0:
		parts = append(parts, strconv.Itoa(cfg.MaxTokens))
	case cfg.Enabled:
		parts = append(parts, "on")
	}
	if cfg.Exclude {
		parts = append(parts, "exclude")
	}
	return strings.Join(parts, "::")
}

// ThinkingOptionsFromReasoning adapts a parsed reasoning spec into the
// provider-facing ThinkingOptions carried on a Request.
func ThinkingOptionsFromReasoning(cfg *ReasoningConfig) *ThinkingOptions {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &ThinkingOptions{
		Enable:       cfg.Effort != "none",
		BudgetTokens: cfg.MaxTokens,
		Effort:       cfg.Effort,
		Exclude:      cfg.Exclude,
	}
}

// APIFields renders the reasoning config to the provider-facing shape.
// Providers accept only one of effort or max_tokens; max_tokens takes
// precedence when both are present since it is the more explicit request,
// with effort retained only as a hint for interpreting the budget.
func (c *ReasoningConfig) APIFields() map[string]any {
	out := map[string]any{}
	switch {
	case c.MaxTokens != 0:
		out["max_tokens"] = c.MaxTokens
	case c.Effort != "" && c.Effort != "none":
		out["effort"] = c.Effort
	case c.Effort == "none":
		out["effort"] = "none"
	}
	if c.Exclude {
		out["exclude"] = true
	}
	if len(out) == 0 && c.Enabled {
		out["enabled"] = true
	}
	return out
}
