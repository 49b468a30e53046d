package query

import (
	"github.com/filmgraph/backend/pkg/common"
)

func stringParam(name, def string) Param {
	return Param{Name: name, Type: ParamString, Default: def}
}

func intParam(name, def string) Param {
	return Param{Name: name, Type: ParamInt, Default: def}
}

func floatParam(name, def string) Param {
	return Param{Name: name, Type: ParamFloat, Default: def}
}

// positive returns an int parameter that must be greater than zero, as
// limits and slice sizes are.
func positive(p Params, name string) (int64, error) {
	v := p.Int(name)
	if v <= 0 {
		return 0, common.NewValidationError(name, "must be greater than zero")
	}
	return v, nil
}

// required returns a string parameter that must not be blank.
func required(p Params, name string) (string, error) {
	v := p.String(name)
	if v == "" {
		return "", common.NewValidationError(name, "required")
	}
	return v, nil
}
