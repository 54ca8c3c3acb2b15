package compiler

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/library"
	"github.com/roach88/hysim/internal/signal"
)

// Validation error codes (E200-E299)
const (
	ErrUnsupportedType = "E200" // unsupported type for validation

	// Model structure (E201-E205)
	ErrModelNameEmpty     = "E201" // model name is required
	ErrNoActors           = "E202" // at least one actor required
	ErrUnknownActorKind   = "E203" // kind not in the actor library
	ErrDuplicateName      = "E204" // duplicate actor or boundary port name
	ErrInvalidIdentifier  = "E205" // empty name, or one containing '.' or spaces
	ErrInvalidActorParams = "E206" // actor factory rejected its params
	ErrInvalidSignalKind  = "E207" // unknown signal kind name
	ErrUnknownPort        = "E208" // port override names a missing port

	// Connections (E210-E214)
	ErrMalformedEndpoint = "E210" // endpoint is not "actor.port" or a boundary name
	ErrUnknownEndpoint   = "E211" // endpoint names a missing actor or port
	ErrConnectionDir     = "E212" // from must drive, to must receive

	// Director settings (E220)
	ErrInvalidDirector = "E220" // unknown or invalid director setting
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one model.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Validate validates a compiled model against the actor library and the
// director settings.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch m := v.(type) {
	case *ModelSpec:
		return validateModel(m, "")
	case ModelSpec:
		return validateModel(&m, "")
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

// endpointInfo is what a connection may attach to.
type endpointInfo struct {
	drives   bool // can be a connection source
	receives bool // can be a connection sink
}

// validateModel checks one hierarchy level; prefix locates nested bodies.
func validateModel(m *ModelSpec, prefix string) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   prefix + field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E201: model name is required
	if strings.TrimSpace(m.Name) == "" {
		add("model", ErrModelNameEmpty, "model name is required and must be non-empty")
	}

	// E202: at least one actor
	if len(m.Actors) == 0 {
		add("actors", ErrNoActors, "at least one actor is required")
	}

	// E220: director settings
	cfg := director.DefaultConfig()
	for _, err := range ApplyDirector(&cfg, m.Director) {
		add("director", ErrInvalidDirector, "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		for _, e := range splitJoined(err) {
			add("director", ErrInvalidDirector, "%v", e)
		}
	}

	// Boundary ports are endpoints addressed by bare name.
	ports := make(map[string]map[string]endpointInfo)
	boundary := make(map[string]endpointInfo)
	for i, b := range m.Inputs {
		field := fmt.Sprintf("inputs[%d]", i)
		if !validIdentifier(b.Name) {
			add(field, ErrInvalidIdentifier, "invalid boundary port name %q", b.Name)
		}
		if _, dup := boundary[b.Name]; dup {
			add(field, ErrDuplicateName, "duplicate boundary port %q", b.Name)
		}
		if _, err := signal.ParseKind(b.Kind); err != nil {
			add(field, ErrInvalidSignalKind, "%v", err)
		}
		boundary[b.Name] = endpointInfo{drives: true}
	}
	for i, b := range m.Outputs {
		field := fmt.Sprintf("outputs[%d]", i)
		if !validIdentifier(b.Name) {
			add(field, ErrInvalidIdentifier, "invalid boundary port name %q", b.Name)
		}
		if _, dup := boundary[b.Name]; dup {
			add(field, ErrDuplicateName, "duplicate boundary port %q", b.Name)
		}
		if _, err := signal.ParseKind(b.Kind); err != nil {
			add(field, ErrInvalidSignalKind, "%v", err)
		}
		boundary[b.Name] = endpointInfo{receives: true}
	}

	for i, a := range m.Actors {
		field := fmt.Sprintf("actors[%d]", i)

		// E205: identifiers are addressed as actor.port
		if !validIdentifier(a.Name) {
			add(field+".name", ErrInvalidIdentifier, "invalid actor name %q", a.Name)
		}

		// E204: duplicate actor name
		if _, dup := ports[a.Name]; dup {
			add(field+".name", ErrDuplicateName, "duplicate actor name: %q", a.Name)
			continue
		}

		// An actor that failed to build stays known with unknown ports, so
		// its connections are not reported again.
		actorPorts, actorErrs := inspectActor(a, prefix+field)
		errs = append(errs, actorErrs...)
		ports[a.Name] = actorPorts
		if actorPorts == nil {
			continue
		}

		// E207/E208: port kind overrides
		for name, kind := range a.Ports {
			if _, ok := actorPorts[name]; !ok {
				add(field+".ports."+name, ErrUnknownPort, "actor %q has no port %q", a.Name, name)
			}
			if _, err := signal.ParseKind(kind); err != nil {
				add(field+".ports."+name, ErrInvalidSignalKind, "%v", err)
			}
		}
	}

	for i, c := range m.Connections {
		field := fmt.Sprintf("connections[%d]", i)
		from, ok := resolveEndpoint(c.From, ports, boundary, field+".from", &errs, prefix)
		if ok && !from.drives {
			add(field+".from", ErrConnectionDir, "%q cannot drive a connection", c.From)
		}
		to, ok := resolveEndpoint(c.To, ports, boundary, field+".to", &errs, prefix)
		if ok && !to.receives {
			add(field+".to", ErrConnectionDir, "%q cannot receive a connection", c.To)
		}
	}

	return errs
}

// inspectActor instantiates a to learn its ports. Subsystem ports come from
// the body's boundary; the body is validated recursively.
func inspectActor(a ActorSpec, field string) (map[string]endpointInfo, []ValidationError) {
	if a.Kind == SubsystemKind {
		if a.Body == nil {
			return nil, []ValidationError{{
				Field:   field + ".kind",
				Message: fmt.Sprintf("subsystem %q has no body", a.Name),
				Code:    ErrInvalidActorParams,
			}}
		}
		out := make(map[string]endpointInfo)
		for _, b := range a.Body.Inputs {
			out[b.Name] = endpointInfo{receives: true}
		}
		for _, b := range a.Body.Outputs {
			out[b.Name] = endpointInfo{drives: true}
		}
		return out, validateModel(a.Body, field+".")
	}

	built, err := library.New(a.Kind, a.Name, a.Params)
	if err != nil {
		code := ErrInvalidActorParams
		if !knownKind(a.Kind) {
			code = ErrUnknownActorKind
		}
		return nil, []ValidationError{{
			Field:   field + ".kind",
			Message: err.Error(),
			Code:    code,
		}}
	}
	return portsOf(built), nil
}

func portsOf(a actor.Actor) map[string]endpointInfo {
	out := make(map[string]endpointInfo)
	for _, p := range a.Ports() {
		out[p.Name()] = endpointInfo{drives: p.IsOutput(), receives: p.IsInput()}
	}
	return out
}

// resolveEndpoint looks up "actor.port" or a bare boundary name.
func resolveEndpoint(ep string, ports map[string]map[string]endpointInfo, boundary map[string]endpointInfo, field string, errs *[]ValidationError, prefix string) (endpointInfo, bool) {
	fail := func(code, format string, args ...any) (endpointInfo, bool) {
		*errs = append(*errs, ValidationError{
			Field:   prefix + field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
		return endpointInfo{}, false
	}

	actorName, portName, dotted := strings.Cut(ep, ".")
	if !dotted {
		if !validIdentifier(ep) {
			return fail(ErrMalformedEndpoint, "malformed endpoint %q, want \"actor.port\"", ep)
		}
		info, ok := boundary[ep]
		if !ok {
			return fail(ErrUnknownEndpoint, "no boundary port %q", ep)
		}
		return info, true
	}
	if !validIdentifier(actorName) || !validIdentifier(portName) {
		return fail(ErrMalformedEndpoint, "malformed endpoint %q, want \"actor.port\"", ep)
	}
	actorPorts, ok := ports[actorName]
	if !ok {
		return fail(ErrUnknownEndpoint, "unknown actor %q", actorName)
	}
	if actorPorts == nil {
		return endpointInfo{}, false
	}
	info, ok := actorPorts[portName]
	if !ok {
		return fail(ErrUnknownEndpoint, "actor %q has no port %q", actorName, portName)
	}
	return info, true
}

func knownKind(kind string) bool {
	for _, k := range library.Kinds() {
		if k == kind {
			return true
		}
	}
	return kind == SubsystemKind
}

// validIdentifier reports whether s can appear as one half of "actor.port".
func validIdentifier(s string) bool {
	if s == "" || s != normalizeName(s) {
		return false
	}
	for _, r := range s {
		if r == '.' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// splitJoined undoes errors.Join so each problem is reported on its own.
func splitJoined(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
