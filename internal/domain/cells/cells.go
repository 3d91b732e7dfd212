// Package cells holds the SCOAP composition rules, one per cell type.
// The rules are a lookup table from cell-type tag to pure functions so the
// set stays data-driven and easy to extend.
package cells

import (
	"github.com/hwsec-lab/trojanforge/internal/model"
)

// MaxCost saturates all SCOAP arithmetic. Very deep sequential designs
// must cap here rather than wrap.
const MaxCost = 1e9

// BaseCost is the controllability of a primary input or register output.
const BaseCost = 1.0

// SequentialPenalty is the extra cost of controlling or observing through
// a register: one more clock edge.
const SequentialPenalty = 5.0

// BlackboxPenalty is the cost of observing through an opaque submodule.
const BlackboxPenalty = 10.0

// Controllability is the (CC0, CC1) pair of one net.
type Controllability struct {
	CC0 float64
	CC1 float64
}

// Base returns the controllability of a source net.
func Base() Controllability {
	return Controllability{CC0: BaseCost, CC1: BaseCost}
}

func saturate(x float64) float64 {
	if x > MaxCost {
		return MaxCost
	}
	return x
}

func sum0(ins []Controllability) float64 {
	var s float64
	for _, in := range ins {
		s = saturate(s + in.CC0)
	}
	return s
}

func sum1(ins []Controllability) float64 {
	var s float64
	for _, in := range ins {
		s = saturate(s + in.CC1)
	}
	return s
}

func min0(ins []Controllability) float64 {
	m := ins[0].CC0
	for _, in := range ins[1:] {
		if in.CC0 < m {
			m = in.CC0
		}
	}
	return m
}

func min1(ins []Controllability) float64 {
	m := ins[0].CC1
	for _, in := range ins[1:] {
		if in.CC1 < m {
			m = in.CC1
		}
	}
	return m
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// controllabilityFunc computes the output controllability of a gate from
// its input controllabilities.
type controllabilityFunc func(ins []Controllability) Controllability

// observabilityFunc computes the observability of input pin through the
// gate, given all input controllabilities and the output observability.
type observabilityFunc func(ins []Controllability, outCO float64, pin int) float64

// xorFold folds the 2-input XOR composition over n inputs:
// CC0 = min(CC0a+CC0b, CC1a+CC1b)+1, CC1 = min(CC0a+CC1b, CC1a+CC0b)+1.
func xorFold(ins []Controllability) Controllability {
	acc := ins[0]
	for _, in := range ins[1:] {
		acc = Controllability{
			CC0: saturate(min2(acc.CC0+in.CC0, acc.CC1+in.CC1)),
			CC1: saturate(min2(acc.CC0+in.CC1, acc.CC1+in.CC0)),
		}
	}
	return Controllability{CC0: saturate(acc.CC0 + 1), CC1: saturate(acc.CC1 + 1)}
}

var controllabilityRules = map[model.CellType]controllabilityFunc{
	model.CellAND: func(ins []Controllability) Controllability {
		return Controllability{CC0: saturate(min0(ins) + 1), CC1: saturate(sum1(ins) + 1)}
	},
	model.CellNAND: func(ins []Controllability) Controllability {
		return Controllability{CC0: saturate(sum1(ins) + 1), CC1: saturate(min0(ins) + 1)}
	},
	model.CellOR: func(ins []Controllability) Controllability {
		return Controllability{CC0: saturate(sum0(ins) + 1), CC1: saturate(min1(ins) + 1)}
	},
	model.CellNOR: func(ins []Controllability) Controllability {
		return Controllability{CC0: saturate(min1(ins) + 1), CC1: saturate(sum0(ins) + 1)}
	},
	model.CellNOT: func(ins []Controllability) Controllability {
		return Controllability{CC0: saturate(ins[0].CC1 + 1), CC1: saturate(ins[0].CC0 + 1)}
	},
	model.CellBUF: func(ins []Controllability) Controllability {
		return Controllability{CC0: saturate(ins[0].CC0 + 1), CC1: saturate(ins[0].CC1 + 1)}
	},
	model.CellXOR: xorFold,
	model.CellXNOR: func(ins []Controllability) Controllability {
		c := xorFold(ins)
		return Controllability{CC0: c.CC1, CC1: c.CC0}
	},
	model.CellMUX: muxControllability,
	model.CellDFF: func(ins []Controllability) Controllability {
		// Controlling a register output costs its data input plus one
		// clock edge. Only reachable when registers are not treated as
		// sources (the analyzer normally assigns Base directly).
		return Controllability{
			CC0: saturate(ins[0].CC0 + SequentialPenalty),
			CC1: saturate(ins[0].CC1 + SequentialPenalty),
		}
	},
}

// muxControllability handles the 2:1 MUX with the select on the last pin:
// out = S ? B : A. Other arities degrade to an averaged approximation.
func muxControllability(ins []Controllability) Controllability {
	if len(ins) == 3 {
		a, b, s := ins[0], ins[1], ins[2]
		return Controllability{
			CC0: saturate(min2(a.CC0+s.CC0, b.CC0+s.CC1) + 1),
			CC1: saturate(min2(a.CC1+s.CC0, b.CC1+s.CC1) + 1),
		}
	}
	var c0, c1 float64
	for _, in := range ins {
		c0 += in.CC0
		c1 += in.CC1
	}
	n := float64(len(ins))
	return Controllability{CC0: saturate(c0/n + 2), CC1: saturate(c1/n + 2)}
}

var observabilityRules = map[model.CellType]observabilityFunc{
	model.CellAND:  andObservability,
	model.CellNAND: andObservability,
	model.CellOR:   orObservability,
	model.CellNOR:  orObservability,
	model.CellNOT: func(_ []Controllability, outCO float64, _ int) float64 {
		return saturate(outCO + 1)
	},
	model.CellBUF: func(_ []Controllability, outCO float64, _ int) float64 {
		return saturate(outCO + 1)
	},
	model.CellXOR:  xorObservability,
	model.CellXNOR: xorObservability,
	model.CellMUX:  muxObservability,
	model.CellDFF: func(_ []Controllability, outCO float64, _ int) float64 {
		return saturate(outCO + SequentialPenalty)
	},
	model.CellBlackbox: func(_ []Controllability, outCO float64, _ int) float64 {
		return saturate(outCO + BlackboxPenalty)
	},
}

// andObservability: propagating through AND/NAND needs every other input
// driven to 1.
func andObservability(ins []Controllability, outCO float64, pin int) float64 {
	cost := outCO + 1
	for i, in := range ins {
		if i != pin {
			cost = saturate(cost + in.CC1)
		}
	}
	return cost
}

// orObservability: every other input must be driven to 0.
func orObservability(ins []Controllability, outCO float64, pin int) float64 {
	cost := outCO + 1
	for i, in := range ins {
		if i != pin {
			cost = saturate(cost + in.CC0)
		}
	}
	return cost
}

// xorObservability: the other inputs must be set to any known value, so
// each contributes its cheaper side.
func xorObservability(ins []Controllability, outCO float64, pin int) float64 {
	cost := outCO + 1
	for i, in := range ins {
		if i != pin {
			cost = saturate(cost + min2(in.CC0, in.CC1))
		}
	}
	return cost
}

// muxObservability: a data input is observed by steering the select toward
// it; the select is observed by distinguishable data values.
func muxObservability(ins []Controllability, outCO float64, pin int) float64 {
	if len(ins) != 3 {
		return saturate(outCO + float64(len(ins)))
	}
	a, b, s := ins[0], ins[1], ins[2]
	switch pin {
	case 0:
		return saturate(outCO + s.CC0 + 1)
	case 1:
		return saturate(outCO + s.CC1 + 1)
	default:
		return saturate(outCO + min2(a.CC0+b.CC1, a.CC1+b.CC0) + 1)
	}
}

// ControllabilityOf applies the rule for the given cell type. The second
// return value is false for cell types with no rule.
func ControllabilityOf(ct model.CellType, ins []Controllability) (Controllability, bool) {
	rule, ok := controllabilityRules[ct]
	if !ok || len(ins) == 0 {
		return Controllability{}, false
	}
	return rule(ins), true
}

// ObservabilityOf computes the observability of input pin of a gate of the
// given type. The second return value is false for cell types with no rule.
func ObservabilityOf(ct model.CellType, ins []Controllability, outCO float64, pin int) (float64, bool) {
	rule, ok := observabilityRules[ct]
	if !ok {
		return 0, false
	}
	return rule(ins, outCO, pin), true
}

// HasRules reports whether the cell type participates in SCOAP analysis.
func HasRules(ct model.CellType) bool {
	_, ok := controllabilityRules[ct]
	return ok || ct == model.CellBlackbox
}
