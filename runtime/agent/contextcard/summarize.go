package contextcard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// shortMessageThreshold below which content is used as-is (§4.11).
const shortMessageThreshold = 200

// Summarizer turns a request's content into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// HeuristicSummarizer is the fast path preferred by default: no model call,
// just a handful of content-shape rules.
type HeuristicSummarizer struct{}

// Summarize implements Summarizer.
func (HeuristicSummarizer) Summarize(_ context.Context, req Request) (string, error) {
	return summarizeHeuristic(req), nil
}

func summarizeHeuristic(req Request) string {
	switch v := req.Content.(type) {
	case string:
		return summarizeText(v, req.Role)
	case map[string]any:
		return summarizeDict(v)
	case nil:
		return ""
	default:
		if b, err := json.Marshal(v); err == nil {
			return summarizeText(string(b), req.Role)
		}
		return fmt.Sprintf("%v", v)
	}
}

func summarizeText(text string, role string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if len([]rune(text)) < shortMessageThreshold {
		return text
	}
	if role == "tool_result" {
		return summarizeToolResult(text)
	}
	if para := firstParagraph(text); para != "" && len([]rune(para)) < shortMessageThreshold {
		return para
	}
	return truncate(text, shortMessageThreshold)
}

// summarizeToolResult heuristically compresses a tool result: the first
// line usually carries the outcome (status, count, error), the rest is
// detail a caller rarely needs for recall.
func summarizeToolResult(text string) string {
	lines := strings.SplitN(text, "\n", 2)
	first := strings.TrimSpace(lines[0])
	if len(lines) == 1 {
		return truncate(first, shortMessageThreshold)
	}
	return truncate(first, shortMessageThreshold) + " ..."
}

func firstParagraph(text string) string {
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return ""
}

func truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

// summarizeDict enumerates a structured payload's keys rather than dumping
// the whole thing, e.g. `{status, items, error}`.
func summarizeDict(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "{" + strings.Join(keys, ", ") + "}"
}

// LLMSummarizer defers summarization to a model call. It is available per
// §4.11 but not wired in by default — the fast heuristic path is preferred,
// and this type exists so a caller can opt in explicitly.
type LLMSummarizer struct {
	Complete func(ctx context.Context, prompt string) (string, error)
}

// Summarize implements Summarizer.
func (l LLMSummarizer) Summarize(ctx context.Context, req Request) (string, error) {
	text := summarizeHeuristic(req)
	if l.Complete == nil || text == "" {
		return text, nil
	}
	return l.Complete(ctx, "Summarize in one sentence: "+text)
}

// TokenEstimate approximates token count as one token per four characters
// (§4.11).
func TokenEstimate(text string) int {
	return (len([]rune(text)) + 3) / 4
}
