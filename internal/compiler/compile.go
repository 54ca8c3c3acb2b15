package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
)

// CompileModel parses a CUE value into a ModelSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value is the root of a model file:
//
//	model: "ramp"
//	director: {stop_time: 1, solver: "heun-euler"}
//	actors: {
//		one: {kind: "const", params: {value: 1}}
//		x:   {kind: "integrator"}
//	}
//	connections: [{from: "one.output", to: "x.input"}]
func CompileModel(v cue.Value) (*ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	nameVal := v.LookupPath(cue.ParsePath("model"))
	if !nameVal.Exists() {
		return nil, &CompileError{
			Field:   "model",
			Message: "model name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	spec, err := compileBody(v, name)
	if err != nil {
		return nil, err
	}
	if len(spec.Inputs) > 0 || len(spec.Outputs) > 0 {
		return nil, &CompileError{
			Field:   "inputs",
			Message: "boundary ports are only allowed on subsystems",
			Pos:     v.Pos(),
		}
	}
	return spec, nil
}

// compileBody parses the parts shared by a model and a subsystem body.
func compileBody(v cue.Value, name string) (*ModelSpec, error) {
	spec := &ModelSpec{
		Name:        normalizeName(name),
		Actors:      []ActorSpec{},
		Connections: []ConnectionSpec{},
	}

	var err error
	if spec.Director, err = parseDirector(v); err != nil {
		return nil, err
	}
	if spec.Actors, err = parseActors(v); err != nil {
		return nil, err
	}
	if spec.Connections, err = parseConnections(v); err != nil {
		return nil, err
	}
	if spec.Inputs, err = parseBoundary(v, "inputs"); err != nil {
		return nil, err
	}
	if spec.Outputs, err = parseBoundary(v, "outputs"); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseDirector reads the optional director block as key/value settings.
func parseDirector(v cue.Value) (map[string]any, error) {
	dirVal := v.LookupPath(cue.ParsePath("director"))
	if !dirVal.Exists() {
		return nil, nil
	}
	settings, err := parseScalars(dirVal, "director")
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// parseActors extracts actor instances in declaration order.
func parseActors(v cue.Value) ([]ActorSpec, error) {
	actors := []ActorSpec{}

	actorsVal := v.LookupPath(cue.ParsePath("actors"))
	if !actorsVal.Exists() {
		return actors, nil
	}

	iter, err := actorsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		actorName := iter.Label()
		actorValue := iter.Value()

		a := ActorSpec{
			Name: normalizeName(actorName),
			Pos:  actorValue.Pos(),
		}

		kindVal := actorValue.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("actors.%s.kind", actorName),
				Message: "actor kind is required",
				Pos:     actorValue.Pos(),
			}
		}
		if a.Kind, err = kindVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if paramsVal := actorValue.LookupPath(cue.ParsePath("params")); paramsVal.Exists() {
			if a.Params, err = parseScalars(paramsVal, fmt.Sprintf("actors.%s.params", actorName)); err != nil {
				return nil, err
			}
		}

		if portsVal := actorValue.LookupPath(cue.ParsePath("ports")); portsVal.Exists() {
			if a.Ports, err = parseStringMap(portsVal); err != nil {
				return nil, err
			}
		}

		if a.Kind == SubsystemKind {
			if a.Body, err = compileBody(actorValue, a.Name); err != nil {
				return nil, err
			}
		}

		actors = append(actors, a)
	}

	return actors, nil
}

// parseConnections extracts the connection list.
func parseConnections(v cue.Value) ([]ConnectionSpec, error) {
	conns := []ConnectionSpec{}

	connsVal := v.LookupPath(cue.ParsePath("connections"))
	if !connsVal.Exists() {
		return conns, nil
	}

	iter, err := connsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		connVal := iter.Value()
		from, err := requiredString(connVal, "from", "connections")
		if err != nil {
			return nil, err
		}
		to, err := requiredString(connVal, "to", "connections")
		if err != nil {
			return nil, err
		}
		conns = append(conns, ConnectionSpec{
			From: normalizeName(from),
			To:   normalizeName(to),
			Pos:  connVal.Pos(),
		})
	}

	return conns, nil
}

// parseBoundary extracts boundary ports as name: kind pairs.
func parseBoundary(v cue.Value, field string) ([]BoundarySpec, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}

	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var ports []BoundarySpec
	for iter.Next() {
		kind, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		ports = append(ports, BoundarySpec{Name: normalizeName(iter.Label()), Kind: kind})
	}
	return ports, nil
}

func requiredString(v cue.Value, field, context string) (string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return "", &CompileError{
			Field:   context + "." + field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func parseStringMap(v cue.Value) (map[string]string, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]string)
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out[normalizeName(iter.Label())] = s
	}
	return out, nil
}

// parseScalars reads a struct of numbers, strings and bools.
func parseScalars(v cue.Value, context string) (map[string]any, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]any)
	for iter.Next() {
		key := iter.Label()
		val, err := scalar(iter.Value())
		if err != nil {
			return nil, &CompileError{
				Field:   context + "." + key,
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		out[key] = val
	}
	return out, nil
}

// scalar converts a concrete CUE value to float64, string or bool.
// Integers become float64 since every numeric setting is real-valued.
func scalar(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("not a concrete number: %v", err)
		}
		return f, nil
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		return v.Bool()
	default:
		return nil, fmt.Errorf("unsupported value kind: %v", v.IncompleteKind())
	}
}
