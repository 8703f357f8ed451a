// Package plan defines subscription plan types and their token budgets.
package plan

import "fmt"

// Type is a subscription plan identifier.
type Type string

// Known plan types.
const (
	Free Type = "free"
	Plus Type = "plus"
)

// Token budgets by plan.
const (
	freeMaxTokens = 14000
	plusMaxTokens = 128000
)

// Parse validates a plan string. Empty input defaults to Free.
func Parse(s string) (Type, error) {
	switch Type(s) {
	case "":
		return Free, nil
	case Free, Plus:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown plan type %q", s)
	}
}

// MaxTokens returns the token budget for the plan.
// Unknown values fall back to the free budget.
func (t Type) MaxTokens() int {
	if t == Plus {
		return plusMaxTokens
	}
	return freeMaxTokens
}

func (t Type) String() string { return string(t) }
