package actor

import (
	"fmt"

	"github.com/roach88/hysim/internal/receiver"
	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/simerr"
)

// Direction is a port's data direction as seen from inside its container.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Port is a typed connection point on an actor or on a composite boundary.
//
// An input port owns one receiver per incoming link; the link index is its
// channel number. An output port delivers every Send to each linked receiver.
type Port struct {
	name     string
	owner    string
	dir      Direction
	declared signal.Kind
	resolved signal.Kind
	boundary bool

	peers     []*Port
	receivers []receiver.Receiver
	sinks     []sink
}

type sink struct {
	port    *Port
	channel int
}

func newPort(owner, name string, dir Direction, kind signal.Kind) *Port {
	return &Port{name: name, owner: owner, dir: dir, declared: kind}
}

// Name returns the port's short name.
func (p *Port) Name() string { return p.name }

// FullName returns owner.name.
func (p *Port) FullName() string {
	if p.owner == "" {
		return p.name
	}
	return p.owner + "." + p.name
}

// Owner returns the name of the actor or composite the port belongs to.
func (p *Port) Owner() string { return p.owner }

// Direction returns the data direction.
func (p *Port) Direction() Direction { return p.dir }

func (p *Port) IsInput() bool  { return p.dir == Input }
func (p *Port) IsOutput() bool { return p.dir == Output }

// IsBoundary reports whether the port belongs to a composite boundary.
func (p *Port) IsBoundary() bool { return p.boundary }

// Declared returns the explicitly configured kind, or Unknown.
func (p *Port) Declared() signal.Kind { return p.declared }

// SetDeclared overrides the configured kind. Takes effect on the next
// schedule.
func (p *Port) SetDeclared(k signal.Kind) { p.declared = k }

// Kind returns the resolved kind, falling back to the declared one before
// the first schedule.
func (p *Port) Kind() signal.Kind {
	if p.resolved != signal.Unknown {
		return p.resolved
	}
	return p.declared
}

func (p *Port) IsContinuous() bool { return p.Kind() != signal.Discrete }
func (p *Port) IsDiscrete() bool   { return p.Kind() == signal.Discrete }

// Width returns the number of links attached to the port.
func (p *Port) Width() int { return len(p.peers) }

// Peers returns the directly connected ports in link order.
func (p *Port) Peers() []*Port {
	out := make([]*Port, len(p.peers))
	copy(out, p.peers)
	return out
}

// Send delivers v to every linked receiver.
func (p *Port) Send(v receiver.Token) {
	for _, s := range p.sinks {
		s.port.ensureReceivers()
		s.port.receivers[s.channel].Put(v)
	}
}

// Get reads channel ch.
func (p *Port) Get(ch int) (receiver.Token, error) {
	r, err := p.Receiver(ch)
	if err != nil {
		return 0, err
	}
	return r.Get()
}

// HasToken reports whether channel ch holds a readable token.
func (p *Port) HasToken(ch int) bool {
	r, err := p.Receiver(ch)
	if err != nil {
		return false
	}
	return r.HasToken()
}

// Receiver returns the receiver on channel ch.
func (p *Port) Receiver(ch int) (receiver.Receiver, error) {
	p.ensureReceivers()
	if ch < 0 || ch >= len(p.receivers) {
		return nil, simerr.NewMisconfigured(p.owner,
			fmt.Sprintf("port %s has no channel %d (width %d)", p.FullName(), ch, len(p.receivers)))
	}
	return p.receivers[ch], nil
}

// Reset empties every receiver on the port.
func (p *Port) Reset() {
	for _, r := range p.receivers {
		r.Reset()
	}
}

// ClearDiscrete empties receivers that carry discrete events.
func (p *Port) ClearDiscrete() {
	for _, r := range p.receivers {
		if r.Kind() == signal.Discrete {
			r.Reset()
		}
	}
}

func (p *Port) String() string {
	return fmt.Sprintf("%s(%s,%s)", p.FullName(), p.dir, p.Kind())
}

func (p *Port) receivesTokens() bool {
	// Actor inputs and boundary outputs buffer tokens; both are Input
	// direction from the inside.
	return p.dir == Input
}

func (p *Port) ensureReceivers() {
	if !p.receivesTokens() || len(p.receivers) == len(p.peers) {
		return
	}
	p.buildReceivers()
}

func (p *Port) buildReceivers() {
	p.receivers = nil
	if !p.receivesTokens() {
		return
	}
	p.receivers = make([]receiver.Receiver, len(p.peers))
	for i := range p.receivers {
		p.receivers[i] = receiver.New(p.Kind(), p.FullName())
	}
}

func (p *Port) clearLinks() {
	p.peers = nil
	p.sinks = nil
	p.receivers = nil
}
