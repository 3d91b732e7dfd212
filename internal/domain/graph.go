package domain

import (
	"sort"

	"github.com/hwsec-lab/trojanforge/internal/model"
)

// Circuit is the traversal view over a parsed Module: driver and reader
// lookup plus a topological level for every net. Register and blackbox
// outputs count as level-0 sources, which is what keeps the traversal
// acyclic despite sequential feedback loops.
type Circuit struct {
	Module   *model.Module
	levels   map[string]int
	byLevel  [][]string
	MaxLevel int
}

// NewCircuit levelizes the module. It fails with CombinationalLoopError if
// a purely combinational cycle is present.
func NewCircuit(mod *model.Module) (*Circuit, error) {
	c := &Circuit{
		Module: mod,
		levels: make(map[string]int, len(mod.Nets)),
	}
	if err := c.levelize(); err != nil {
		return nil, err
	}
	return c, nil
}

// isSource reports whether the net is a levelization source: a primary
// input, a register output, a blackbox output, or a dangling net (the
// analyzer rejects dangling nets separately).
func (c *Circuit) isSource(name string) bool {
	net := c.Module.Nets[name]
	if net.IsInput || net.Driver == "" {
		return true
	}
	driver := c.Module.Gates[net.Driver]
	return driver.Type.IsRegister() || driver.Type == model.CellBlackbox
}

// levelize assigns level 0 to all sources and max(input levels)+1 to every
// combinationally driven net, iterating to a fixed point. No progress with
// unleveled nets remaining means a combinational cycle.
func (c *Circuit) levelize() error {
	for _, name := range c.Module.NetOrder {
		if c.isSource(name) {
			c.levels[name] = 0
		}
	}

	for {
		changed := false
		remaining := 0
		for _, name := range c.Module.NetOrder {
			if _, done := c.levels[name]; done {
				continue
			}
			driver := c.Module.Gates[c.Module.Nets[name].Driver]
			maxIn := -1
			ready := true
			for _, in := range driver.Inputs {
				lvl, ok := c.levels[in]
				if !ok {
					ready = false
					break
				}
				if lvl > maxIn {
					maxIn = lvl
				}
			}
			if !ready {
				remaining++
				continue
			}
			c.levels[name] = maxIn + 1
			if maxIn+1 > c.MaxLevel {
				c.MaxLevel = maxIn + 1
			}
			changed = true
		}
		if remaining == 0 && !changed {
			break
		}
		if !changed {
			var stuck []string
			for _, name := range c.Module.NetOrder {
				if _, done := c.levels[name]; !done {
					stuck = append(stuck, name)
				}
			}
			sort.Strings(stuck)
			return &model.CombinationalLoopError{Nets: stuck}
		}
	}

	c.byLevel = make([][]string, c.MaxLevel+1)
	for _, name := range c.Module.NetOrder {
		lvl := c.levels[name]
		c.byLevel[lvl] = append(c.byLevel[lvl], name)
	}
	return nil
}

// Level returns the topological level of a net. Logic depth of a net is
// its level.
func (c *Circuit) Level(name string) int {
	return c.levels[name]
}

// NetsAtLevel returns the nets at one level, in declaration order.
func (c *Circuit) NetsAtLevel(level int) []string {
	if level < 0 || level >= len(c.byLevel) {
		return nil
	}
	return c.byLevel[level]
}

// Nets iterates net names in declaration order.
func (c *Circuit) Nets() []string {
	return c.Module.NetOrder
}

// Driver returns the gate driving a net, or nil for sources.
func (c *Circuit) Driver(name string) *model.Gate {
	net := c.Module.Nets[name]
	if net == nil || net.Driver == "" {
		return nil
	}
	return c.Module.Gates[net.Driver]
}

// Readers returns the gates reading a net, in gate-name order.
func (c *Circuit) Readers(name string) []*model.Gate {
	net := c.Module.Nets[name]
	if net == nil {
		return nil
	}
	gates := make([]*model.Gate, 0, len(net.Readers))
	seen := make(map[string]bool, len(net.Readers))
	for _, gn := range net.Readers {
		if !seen[gn] {
			seen[gn] = true
			gates = append(gates, c.Module.Gates[gn])
		}
	}
	return gates
}

// IsRegisterOutput reports whether the net is driven by a register cell.
func (c *Circuit) IsRegisterOutput(name string) bool {
	driver := c.Driver(name)
	return driver != nil && driver.Type.IsRegister()
}

func sortedGateNames(mod *model.Module) []string {
	names := make([]string, 0, len(mod.Gates))
	for name := range mod.Gates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
