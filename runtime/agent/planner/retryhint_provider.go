package planner

import "github.com/cascadekit/cascade/runtime/agent/toolregistry"

// RetryHintProvider can be implemented by domain-specific errors that want
// to carry structured retry guidance for a tool. No code in this module
// checks errors for this interface.
type RetryHintProvider interface {
	RetryHint(tool toolregistry.Ident) *RetryHint
}



