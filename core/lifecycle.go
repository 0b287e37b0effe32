package core

import "fmt"

// Lifecycle declares the allowed transitions between the states of one entity.
type Lifecycle[S ~string] struct {
	entity      string
	transitions map[S][]S
}

func NewLifecycle[S ~string](entity string, transitions map[S][]S) Lifecycle[S] {
	return Lifecycle[S]{entity: entity, transitions: transitions}
}

func (lc Lifecycle[S]) Valid(s S) bool {
	if _, ok := lc.transitions[s]; ok {
		return true
	}
	for _, targets := range lc.transitions {
		for _, t := range targets {
			if t == s {
				return true
			}
		}
	}
	return false
}

// CheckFilter rejects a status filter naming an unknown state. An empty filter matches every state.
func (lc Lifecycle[S]) CheckFilter(s S) error {
	if s == "" || lc.Valid(s) {
		return nil
	}
	return NewValidationError(nil, FieldError{Field: "status", Error: fmt.Sprintf("unknown %s status: %s", lc.entity, s)})
}

func (lc Lifecycle[S]) CanTransition(from, to S) bool {
	for _, t := range lc.transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition validates moving from `from` to `to`.
func (lc Lifecycle[S]) Transition(from, to S) error {
	if from == to {
		return NewInvariantError(
			ReasonDuplicateAction,
			fmt.Sprintf("%s is already %s", lc.entity, to),
			map[string]interface{}{"status": to},
		)
	}
	if !lc.CanTransition(from, to) {
		return NewInvariantError(
			ReasonInvalidTransition,
			fmt.Sprintf("%s cannot go from %s to %s", lc.entity, from, to),
			map[string]interface{}{"from": from, "to": to},
		)
	}
	return nil
}
