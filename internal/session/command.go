package session

import (
	"fmt"

	"github.com/san-kum/simhost/internal/engine"
)

type Kind string

const (
	KeyboardDown Kind = "keyboard_down"
	KeyboardUp   Kind = "keyboard_up"
	UIInput      Kind = "ui_input"
	UpdateParam  Kind = "update_param"
	Reset        Kind = "reset"
)

// Command is one client input. Only the fields of its Kind are set.
type Command struct {
	Kind Kind

	// Key is set for keyboard commands.
	Key string

	// Action and Value are set for UI commands.
	Action string
	Value  any

	// Params is set for UpdateParam.
	Params engine.Params
}

func KeyDown(key string) Command { return Command{Kind: KeyboardDown, Key: key} }

func KeyUp(key string) Command { return Command{Kind: KeyboardUp, Key: key} }

func UI(action string, value any) Command {
	return Command{Kind: UIInput, Action: action, Value: value}
}

func Update(params engine.Params) Command { return Command{Kind: UpdateParam, Params: params} }

// ParseCommand decodes the generic input_event payload:
//
//	{"type": "keyboard_down", "key": "a"}
//	{"type": "ui_input", "action": "toggle_controller", "value": {"controller": "lqr"}}
//	{"type": "update_param", "params": {"mass": 2}}
//	{"type": "reset"}
func ParseCommand(raw map[string]any) (Command, error) {
	kind, _ := raw["type"].(string)
	switch Kind(kind) {
	case KeyboardDown, KeyboardUp:
		key, ok := raw["key"].(string)
		if !ok || key == "" {
			return Command{}, inputErr(Kind(kind), "missing key")
		}
		return Command{Kind: Kind(kind), Key: key}, nil
	case UIInput:
		action, ok := raw["action"].(string)
		if !ok || action == "" {
			return Command{}, inputErr(UIInput, "missing action")
		}
		return UI(action, raw["value"]), nil
	case UpdateParam:
		params, ok := raw["params"].(map[string]any)
		if !ok {
			return Command{}, inputErr(UpdateParam, "params must be an object, got %T", raw["params"])
		}
		return Update(params), nil
	case Reset:
		return Command{Kind: Reset}, nil
	default:
		return Command{}, &InputError{Kind: Kind(kind), Err: fmt.Errorf("unknown input type %q", kind)}
	}
}
