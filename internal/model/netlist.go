// Package model defines the data structures shared by the netlist pipeline.
package model

// CellType classifies a gate instance. The classification drives the
// controllability/observability propagation rules, so every gate the
// analyzer visits must carry one of these tags.
type CellType int

const (
	CellAND CellType = iota
	CellOR
	CellNOT
	CellNAND
	CellNOR
	CellXOR
	CellXNOR
	CellBUF
	CellMUX
	CellDFF
	// CellBlackbox marks an opaque submodule instance kept as a boundary
	// in hierarchical mode. Its output nets behave like primary inputs.
	CellBlackbox
	CellUnknown
)

// String returns the canonical name of the cell type.
func (ct CellType) String() string {
	switch ct {
	case CellAND:
		return "AND"
	case CellOR:
		return "OR"
	case CellNOT:
		return "NOT"
	case CellNAND:
		return "NAND"
	case CellNOR:
		return "NOR"
	case CellXOR:
		return "XOR"
	case CellXNOR:
		return "XNOR"
	case CellBUF:
		return "BUF"
	case CellMUX:
		return "MUX"
	case CellDFF:
		return "DFF"
	case CellBlackbox:
		return "BLACKBOX"
	default:
		return "UNKNOWN"
	}
}

// IsRegister reports whether the cell breaks combinational paths.
func (ct CellType) IsRegister() bool { return ct == CellDFF }

// Net is a named signal. Nets are owned by their Module and referenced by
// name everywhere else; downstream records never hold pointers into the
// graph so the synthesis engine can outlive it.
type Net struct {
	Name      string
	Width     int
	IsInput   bool
	IsOutput  bool
	Driver    string   // instance name of the driving gate, "" for primary inputs
	Readers   []string // instance names of gates reading this net
	DeclOrder int      // position in declaration order, used for stable iteration
}

// Gate is an instantiated primitive or register cell.
type Gate struct {
	Name     string
	Type     CellType
	CellName string   // raw cell identifier from the source, e.g. NAND2_X1
	Inputs   []string // input net names, in port order
	Output   string   // output net name
}

// Port is a module-level boundary signal.
type Port struct {
	Name     string
	IsInput  bool
	Width    int
}

// Module owns all nets, gates and ports of one parsed design.
// It is immutable after parsing; the synthesis engine works on a private
// copy of the source text, never on the graph.
type Module struct {
	Name     string
	Ports    []Port
	Nets     map[string]*Net
	Gates    map[string]*Gate
	NetOrder []string // declaration order of net names
	Warnings []string // non-fatal parser diagnostics (lenient mode)
}

// NetByName returns the named net, or nil.
func (m *Module) NetByName(name string) *Net {
	return m.Nets[name]
}

// PrimaryInputs returns the names of primary input nets in declaration order.
func (m *Module) PrimaryInputs() []string {
	var ins []string
	for _, name := range m.NetOrder {
		if m.Nets[name].IsInput {
			ins = append(ins, name)
		}
	}
	return ins
}

// PrimaryOutputs returns the names of primary output nets in declaration order.
func (m *Module) PrimaryOutputs() []string {
	var outs []string
	for _, name := range m.NetOrder {
		if m.Nets[name].IsOutput {
			outs = append(outs, name)
		}
	}
	return outs
}

// Strictness selects how the parser treats constructs outside the
// supported structural subset.
type Strictness int

const (
	// Lenient records a warning on the module and skips the construct.
	Lenient Strictness = iota
	// Strict rejects the construct with a ParseError.
	Strict
)

// HierarchyMode selects how submodule instances are handled.
type HierarchyMode int

const (
	// Flatten inlines submodule definitions into the parent namespace
	// using instance-qualified net names.
	Flatten HierarchyMode = iota
	// Blackbox keeps submodule instances as opaque boundary gates.
	Blackbox
)
