package domain

import (
	"fmt"
	"strings"

	"github.com/hwsec-lab/trojanforge/internal/model"
)

// elaborate builds the final Module from the top-level rawModule, resolving
// library cells and submodule instances. In Flatten mode submodule
// definitions found in the same source are inlined with instance-qualified
// net names; in Blackbox mode they stay opaque boundary gates.
func (p *Parser) elaborate(file string, raws map[string]*rawModule, top *rawModule) (*model.Module, error) {
	mod := &model.Module{
		Name:  top.name,
		Nets:  make(map[string]*model.Net),
		Gates: make(map[string]*model.Gate),
	}
	if err := p.instantiate(file, raws, top, mod, "", nil, nil); err != nil {
		return nil, err
	}

	for _, port := range top.ports {
		mod.Ports = append(mod.Ports, port)
		if net := mod.Nets[port.Name]; net != nil {
			net.IsInput = port.IsInput
			net.IsOutput = !port.IsInput
		}
	}
	return mod, nil
}

// instantiate adds one module instance's nets and gates to mod. portMap
// maps the instance's formal port names to actual parent-namespace nets;
// it is nil for the top module. stack guards against recursive hierarchies.
func (p *Parser) instantiate(file string, raws map[string]*rawModule, rm *rawModule, mod *model.Module, prefix string, portMap map[string]string, stack []string) error {
	for _, frame := range stack {
		if frame == rm.name {
			return &model.ParseError{File: file, Line: rm.headerLine, Token: rm.name, Msg: "recursive module instantiation"}
		}
	}
	stack = append(stack, rm.name)

	resolve := func(local string) string {
		if actual, ok := portMap[local]; ok {
			return actual
		}
		return prefix + local
	}

	addNet := func(local string) string {
		name := resolve(local)
		if _, ok := mod.Nets[name]; !ok {
			mod.Nets[name] = &model.Net{
				Name:      name,
				Width:     widthOr1(rm.widths, local),
				DeclOrder: len(mod.NetOrder),
			}
			mod.NetOrder = append(mod.NetOrder, name)
		}
		return name
	}

	for _, local := range rm.netOrder {
		addNet(local)
	}
	mod.Warnings = append(mod.Warnings, rm.warnings...)

	for _, g := range rm.gates {
		gate := &model.Gate{
			Name:     prefix + g.Name,
			Type:     g.Type,
			CellName: g.CellName,
			Output:   addNet(g.Output),
		}
		for _, in := range g.Inputs {
			gate.Inputs = append(gate.Inputs, addNet(in))
		}
		mod.Gates[gate.Name] = gate
	}

	for _, inst := range rm.instances {
		sub, isSubmodule := raws[inst.cellName]
		if isSubmodule && p.opts.Hierarchy == model.Flatten {
			subMap, err := bindPorts(file, inst, sub)
			if err != nil {
				return err
			}
			actual := make(map[string]string, len(subMap))
			for formal, localNet := range subMap {
				actual[formal] = addNet(localNet)
			}
			subPrefix := prefix + inst.instName + "."
			if err := p.instantiate(file, raws, sub, mod, subPrefix, actual, stack); err != nil {
				return err
			}
			continue
		}
		if isSubmodule {
			if err := p.addBlackbox(file, rm, inst, sub, mod, prefix, addNet); err != nil {
				return err
			}
			continue
		}
		if err := p.addLibraryCell(file, rm, inst, mod, prefix, addNet); err != nil {
			return err
		}
	}
	return nil
}

func widthOr1(widths map[string]int, name string) int {
	if w, ok := widths[name]; ok && w > 0 {
		return w
	}
	return 1
}

// bindPorts maps a submodule's formal port names to the connecting nets in
// the parent, for both named and positional connection styles.
func bindPorts(file string, inst rawInstance, sub *rawModule) (map[string]string, error) {
	bound := make(map[string]string)
	positional := len(inst.conns) > 0 && inst.conns[0].port == ""
	if positional {
		if len(inst.conns) > len(sub.portOrder) {
			return nil, &model.ParseError{File: file, Line: inst.line, Token: inst.instName, Msg: "more connections than ports"}
		}
		for i, c := range inst.conns {
			if c.net != "" {
				bound[sub.portOrder[i]] = c.net
			}
		}
		return bound, nil
	}
	for _, c := range inst.conns {
		if c.net == "" {
			continue // unconnected port
		}
		if !sub.netSet[c.port] {
			return nil, &model.ParseError{File: file, Line: inst.line, Token: c.port, Msg: fmt.Sprintf("no port %q on module %s", c.port, sub.name)}
		}
		bound[c.port] = c.net
	}
	return bound, nil
}

// addBlackbox keeps a submodule instance as opaque boundary gates, one per
// output port. Blackbox outputs behave like primary inputs downstream.
func (p *Parser) addBlackbox(file string, rm *rawModule, inst rawInstance, sub *rawModule, mod *model.Module, prefix string, addNet func(string) string) error {
	var inputs, outputs []string
	for _, c := range inst.conns {
		if c.net == "" {
			continue
		}
		dir := ""
		if c.port != "" && sub != nil {
			dir = sub.portDirs[c.port]
		}
		switch {
		case dir == "output", c.port != "" && sub == nil && outputPortNames[c.port]:
			outputs = append(outputs, c.net)
		case dir == "" && c.port == "" && len(outputs) == 0:
			// Positional with unknown directions: output-first convention.
			outputs = append(outputs, c.net)
		default:
			inputs = append(inputs, c.net)
		}
	}
	if len(outputs) == 0 {
		if p.opts.Strictness == model.Strict {
			return &model.ParseError{File: file, Line: inst.line, Token: inst.instName, Msg: "blackbox instance with no output connection"}
		}
		rm.warnings = append(rm.warnings, fmt.Sprintf("%s:%d: blackbox %s has no output connection, skipped", file, inst.line, inst.instName))
		return nil
	}

	mappedInputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		mappedInputs = append(mappedInputs, addNet(in))
	}
	for i, out := range outputs {
		name := prefix + inst.instName
		if i > 0 {
			name = fmt.Sprintf("%s_o%d", name, i)
		}
		mod.Gates[name] = &model.Gate{
			Name: name, Type: model.CellBlackbox, CellName: inst.cellName,
			Inputs: append([]string(nil), mappedInputs...), Output: addNet(out),
		}
	}
	return nil
}

// addLibraryCell resolves a generic cell instance by classifying its cell
// name. Multi-output cells (e.g. DFF with Q and QN) become one gate per
// output pin.
func (p *Parser) addLibraryCell(file string, rm *rawModule, inst rawInstance, mod *model.Module, prefix string, addNet func(string) string) error {
	ct := ClassifyCell(inst.cellName)
	if ct == model.CellUnknown {
		if p.opts.Strictness == model.Strict {
			return &model.ParseError{File: file, Line: inst.line, Token: inst.cellName, Msg: "unknown cell type"}
		}
		rm.warnings = append(rm.warnings, fmt.Sprintf("%s:%d: unknown cell %q kept as blackbox", file, inst.line, inst.cellName))
		return p.addBlackbox(file, rm, inst, nil, mod, prefix, addNet)
	}

	var inputs []string
	var inputPorts []string
	var outputs []string
	named := len(inst.conns) > 0 && inst.conns[0].port != ""
	if named {
		for _, c := range inst.conns {
			if c.net == "" {
				continue
			}
			if outputPortNames[c.port] {
				outputs = append(outputs, c.net)
			} else {
				inputs = append(inputs, c.net)
				inputPorts = append(inputPorts, c.port)
			}
		}
	} else {
		if len(inst.conns) < 2 {
			return &model.ParseError{File: file, Line: inst.line, Token: inst.instName, Msg: "cell instance needs an output and at least one input"}
		}
		outputs = append(outputs, inst.conns[0].net)
		for _, c := range inst.conns[1:] {
			inputs = append(inputs, c.net)
			inputPorts = append(inputPorts, "")
		}
	}
	if len(outputs) == 0 {
		return &model.ParseError{File: file, Line: inst.line, Token: inst.instName, Msg: "cell instance with no output connection"}
	}

	// The MUX rule expects the select on the last pin.
	if ct == model.CellMUX && named {
		inputs, inputPorts = selectLast(inputs, inputPorts)
	}

	mappedInputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		mappedInputs = append(mappedInputs, addNet(in))
	}
	for i, out := range outputs {
		name := prefix + inst.instName
		if i > 0 {
			name = fmt.Sprintf("%s_o%d", name, i)
		}
		mod.Gates[name] = &model.Gate{
			Name: name, Type: ct, CellName: inst.cellName,
			Inputs: append([]string(nil), mappedInputs...), Output: addNet(out),
		}
	}
	return nil
}

func selectLast(inputs, ports []string) ([]string, []string) {
	for i, port := range ports {
		up := strings.ToUpper(port)
		if up == "S" || up == "SEL" || up == "S0" {
			inputs = append(append(append([]string(nil), inputs[:i]...), inputs[i+1:]...), inputs[i])
			ports = append(append(append([]string(nil), ports[:i]...), ports[i+1:]...), ports[i])
			break
		}
	}
	return inputs, ports
}

// connect fills in driver and reader references and rejects multiply
// driven nets.
func (p *Parser) connect(file string, mod *model.Module) error {
	for _, name := range sortedGateNames(mod) {
		g := mod.Gates[name]
		out := mod.Nets[g.Output]
		if out == nil {
			return &model.ParseError{File: file, Line: 0, Token: g.Output, Msg: fmt.Sprintf("gate %s drives undeclared net", g.Name)}
		}
		if out.Driver != "" && out.Driver != g.Name {
			return &model.ParseError{File: file, Line: 0, Token: g.Output, Msg: fmt.Sprintf("net driven by both %s and %s", out.Driver, g.Name)}
		}
		out.Driver = g.Name
		for _, in := range g.Inputs {
			net := mod.Nets[in]
			if net == nil {
				return &model.ParseError{File: file, Line: 0, Token: in, Msg: fmt.Sprintf("gate %s reads undeclared net", g.Name)}
			}
			net.Readers = append(net.Readers, g.Name)
		}
	}
	return nil
}
