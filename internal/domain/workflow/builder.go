package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc evaluates a data precondition. A non-nil error refuses the transition
// and its message is reported to the caller.
type GuardFunc func(ctx context.Context) error

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a configuration for the given status
	Configure(status Status) StateConfiguration

	// Build creates a new state machine instance with the given initial status
	Build(initial Status) StateMachine
}

// StateConfiguration configures transitions out of a specific status
type StateConfiguration interface {
	// Permit allows the roles to move to the target status with the action
	Permit(action Action, to Status, roles ...Role) StateConfiguration

	// PermitIf is Permit with a data precondition
	PermitIf(action Action, to Status, guard GuardFunc, roles ...Role) StateConfiguration
}

type transition struct {
	to    Status
	roles map[Role]bool
	guard GuardFunc
}

func (t transition) allows(role Role) bool {
	return t.roles[role]
}

type stateConfig struct {
	from        Status
	transitions map[Action][]transition
}

type stateMachineBuilder struct {
	configurations map[Status]*stateConfig
}

type stateMachine struct {
	current        Status
	configurations map[Status]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[Status]*stateConfig),
	}
}

// Configure returns a configuration for the given status
func (b *stateMachineBuilder) Configure(status Status) StateConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", status))
	}
	if status.IsTerminal() {
		panic(fmt.Sprintf("terminal status cannot have transitions: %s", status))
	}

	config, exists := b.configurations[status]
	if !exists {
		config = &stateConfig{
			from:        status,
			transitions: make(map[Action][]transition),
		}
		b.configurations[status] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial status
func (b *stateMachineBuilder) Build(initial Status) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial status: %s", initial))
	}

	// Copy so later Configure calls do not leak into built machines
	configsCopy := make(map[Status]*stateConfig, len(b.configurations))
	for status, config := range b.configurations {
		transitionsCopy := make(map[Action][]transition, len(config.transitions))
		for action, ts := range config.transitions {
			transitionsCopy[action] = append([]transition{}, ts...)
		}
		configsCopy[status] = &stateConfig{
			from:        status,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine{
		current:        initial,
		configurations: configsCopy,
	}
}

// Permit allows the roles to move to the target status with the action
func (c *stateConfig) Permit(action Action, to Status, roles ...Role) StateConfiguration {
	return c.PermitIf(action, to, nil, roles...)
}

// PermitIf is Permit with a data precondition
func (c *stateConfig) PermitIf(action Action, to Status, guard GuardFunc, roles ...Role) StateConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", to))
	}
	if len(roles) == 0 {
		panic(fmt.Sprintf("transition %s from %s has no roles", action, c.from))
	}

	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	c.transitions[action] = append(c.transitions[action], transition{
		to:    to,
		roles: allowed,
		guard: guard,
	})

	return c
}

// Status returns the current status
func (m *stateMachine) Status() Status {
	return m.current
}

// CanFire reports whether role may attempt action in the current status.
// Guards are not evaluated.
func (m *stateMachine) CanFire(action Action, role Role) bool {
	if m.current.IsTerminal() {
		return false
	}
	config, exists := m.configurations[m.current]
	if !exists {
		return false
	}
	for _, t := range config.transitions[action] {
		if t.allows(role) {
			return true
		}
	}
	return false
}

// Fire attempts the action as role, moving to the new status if allowed
func (m *stateMachine) Fire(ctx context.Context, action Action, role Role) error {
	if m.current.IsTerminal() {
		return fmt.Errorf("%w: cannot %s from %s", ErrTerminalState, action, m.current)
	}

	config, exists := m.configurations[m.current]
	if !exists {
		return fmt.Errorf("%w: cannot %s from %s (no configuration)", ErrInvalidTransition, action, m.current)
	}

	transitions := config.transitions[action]
	if len(transitions) == 0 {
		return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, m.current)
	}

	var guardErr error
	permitted := false
	for _, t := range transitions {
		if !t.allows(role) {
			continue
		}
		permitted = true
		if t.guard != nil {
			if err := t.guard(ctx); err != nil {
				if guardErr == nil {
					guardErr = err
				}
				continue
			}
		}
		m.current = t.to
		return nil
	}

	if !permitted {
		return fmt.Errorf("%w: %s cannot %s from %s", ErrRoleNotPermitted, role, action, m.current)
	}
	return fmt.Errorf("%w: %v", ErrGuardFailed, guardErr)
}

// PermittedActions returns the actions role may attempt in the current status, sorted
func (m *stateMachine) PermittedActions(role Role) []Action {
	if m.current.IsTerminal() {
		return []Action{}
	}
	config, exists := m.configurations[m.current]
	if !exists {
		return []Action{}
	}

	actions := make([]Action, 0, len(config.transitions))
	for action, ts := range config.transitions {
		for _, t := range ts {
			if t.allows(role) {
				actions = append(actions, action)
				break
			}
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	return actions
}

// Target returns the status action would lead to for role, ignoring guards.
func (m *stateMachine) Target(action Action, role Role) (Status, bool) {
	if m.current.IsTerminal() {
		return "", false
	}
	config, exists := m.configurations[m.current]
	if !exists {
		return "", false
	}
	for _, t := range config.transitions[action] {
		if t.allows(role) {
			return t.to, true
		}
	}
	return "", false
}
