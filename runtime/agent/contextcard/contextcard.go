// Package contextcard summarizes and embeds historical session content in
// the background so later phases can select relevant context by similarity
// instead of replaying full transcripts (§4.11).
package contextcard

import "time"

// Request is one candidate record offered to the worker pool. Role doubles
// as both the conversational role ("system") and the structural/eligible
// node-type vocabulary named in §4.11 — the log pipeline emits both through
// the same string field.
type Request struct {
	SessionID   string
	ContentHash string
	Role        string
	Content     any
	PhaseName   string
	CascadeID   string
	TurnNumber  int
	IsCallout   bool
	CalloutName string
	Timestamp   time.Time
}

// structuralRoles are never eligible for a context card regardless of
// content: they describe trace plumbing, not something worth recalling.
var structuralRoles = map[string]bool{
	"context_injection": true,
	"context_selection": true,
	"lifecycle":         true,
	"cascade":           true,
	"phase":              true,
	"turn":              true,
	"structure":         true,
	"validation_start":  true,
	"validation_error":  true,
}

// eligibleRoles is the closed set of roles that do produce a context card.
var eligibleRoles = map[string]bool{
	"agent":            true,
	"tool":             true,
	"tool_result":      true,
	"tool_call":        true,
	"user":             true,
	"message":          true,
	"turn_input":       true,
	"evaluator":        true,
	"sounding_attempt": true,
}

// Eligible reports whether req should be turned into a context card.
func Eligible(req Request) bool {
	if req.Role == "system" || structuralRoles[req.Role] {
		return false
	}
	return eligibleRoles[req.Role]
}

// Card is one row of the context_cards table: a summary, its embedding, and
// the keywords extracted from the original content, keyed by
// (session_id, content_hash) so it joins back to the originating log record.
type Card struct {
	SessionID   string
	ContentHash string
	Summary     string
	Embedding   []float32
	Keywords    []string
	TokenEst    int
	PhaseName   string
	CascadeID   string
	TurnNumber  int
	IsCallout   bool
	CalloutName string
	Timestamp   time.Time
}

// Store persists context cards keyed by (session_id, content_hash).
type Store interface {
	Put(card Card) error
	Get(sessionID, contentHash string) (Card, bool)
}
