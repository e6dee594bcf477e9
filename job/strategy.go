package job

import (
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/pcb"
)

// FeederSelector chooses which candidate feeder supplies a placement.
// candidates is never empty.
type FeederSelector interface {
	SelectFeeder(p *pcb.Placement, candidates []machine.Feeder) machine.Feeder
}

// HeadSelector chooses which candidate head performs a placement.
// candidates is never empty.
type HeadSelector interface {
	SelectHead(p *pcb.Placement, f machine.Feeder, candidates []machine.Head) machine.Head
}

// FirstFit picks the first candidate in machine order.
type FirstFit struct{}

func (FirstFit) SelectFeeder(_ *pcb.Placement, candidates []machine.Feeder) machine.Feeder {
	return candidates[0]
}

func (FirstFit) SelectHead(_ *pcb.Placement, _ machine.Feeder, candidates []machine.Head) machine.Head {
	return candidates[0]
}
