package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/library"
	"github.com/roach88/hysim/internal/signal"
)

// Model is a compiled, ready-to-run model.
type Model struct {
	Name      string
	Composite *actor.Composite
	Config    director.Config
	Spec      *ModelSpec
}

// Recorders returns the recorder actors of the top level in declaration
// order.
func (m *Model) Recorders() []*library.Recorder {
	var out []*library.Recorder
	for _, n := range m.Composite.Nodes() {
		if r, ok := n.Actor.(*library.Recorder); ok {
			out = append(out, r)
		}
	}
	return out
}

// Build validates spec and constructs its actor graph and director
// configuration. subOpts are passed to the embedded director of every
// subsystem, typically a shared recorder and sequence.
//
// Validation problems are returned together as ValidationErrors.
func Build(spec *ModelSpec, subOpts ...director.Option) (*Model, error) {
	if errs := Validate(spec); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	c, cfg, err := buildLevel(spec, subOpts)
	if err != nil {
		return nil, err
	}
	return &Model{Name: spec.Name, Composite: c, Config: cfg, Spec: spec}, nil
}

func buildLevel(spec *ModelSpec, subOpts []director.Option) (*actor.Composite, director.Config, error) {
	cfg := director.DefaultConfig()
	if errs := ApplyDirector(&cfg, spec.Director); len(errs) > 0 {
		return nil, cfg, fmt.Errorf("model %s: %w", spec.Name, errs[0])
	}

	c := actor.NewComposite(spec.Name)
	boundary := make(map[string]*actor.Port)
	for _, b := range spec.Inputs {
		kind, _ := signal.ParseKind(b.Kind)
		boundary[b.Name] = c.BoundaryInput(b.Name, kind)
	}
	for _, b := range spec.Outputs {
		kind, _ := signal.ParseKind(b.Kind)
		boundary[b.Name] = c.BoundaryOutput(b.Name, kind)
	}

	for _, a := range spec.Actors {
		built, err := buildActor(a, subOpts)
		if err != nil {
			return nil, cfg, err
		}
		for name, kind := range a.Ports {
			k, _ := signal.ParseKind(kind)
			if p := findPort(built, name); p != nil {
				p.SetDeclared(k)
			}
		}
		if _, err := c.Add(built); err != nil {
			return nil, cfg, err
		}
	}

	endpoint := func(ep string) (*actor.Port, error) {
		actorName, portName, dotted := strings.Cut(ep, ".")
		if !dotted {
			return boundary[ep], nil
		}
		n, ok := c.Node(actorName)
		if !ok {
			return nil, fmt.Errorf("model %s: unknown actor %q", spec.Name, actorName)
		}
		return findPort(n.Actor, portName), nil
	}
	for _, conn := range spec.Connections {
		from, err := endpoint(conn.From)
		if err != nil {
			return nil, cfg, err
		}
		to, err := endpoint(conn.To)
		if err != nil {
			return nil, cfg, err
		}
		if err := c.Connect(from, to); err != nil {
			return nil, cfg, err
		}
	}
	return c, cfg, nil
}

func buildActor(a ActorSpec, subOpts []director.Option) (actor.Actor, error) {
	if a.Kind != SubsystemKind {
		return library.New(a.Kind, a.Name, a.Params)
	}
	inner, cfg, err := buildLevel(a.Body, subOpts)
	if err != nil {
		return nil, err
	}
	return library.NewSubsystem(a.Name, inner, cfg, subOpts...), nil
}

func findPort(a actor.Actor, name string) *actor.Port {
	for _, p := range a.Ports() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
