package starlark

import (
	"go.starlark.net/starlark"

	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
)

// ParamsToStarlark converts view parameters to a Starlark dict.
// The dict is accessible as "params" global in transforms.
func ParamsToStarlark(params map[string]any) (starlark.Value, error) {
	if params == nil {
		return starlark.NewDict(0), nil
	}
	return GoToStarlark(params)
}

// Predeclared returns all predeclared globals for transform execution:
// view, params, and the math and time modules.
func Predeclared(view *ViewInfo, params starlark.Value) starlark.StringDict {
	globals := starlark.StringDict{
		"params": params,
		"math":   starmath.Module,
		"time":   startime.Module,
	}
	if params == nil {
		globals["params"] = starlark.NewDict(0)
	}
	if view != nil {
		globals["view"] = view.ToStarlark()
	}
	return globals
}
