// Package domain contains the netlist analysis and Trojan synthesis core.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hwsec-lab/trojanforge/internal/model"
)

// ParserOptions configures how strictly the parser treats unsupported
// constructs and how it handles submodule instances.
type ParserOptions struct {
	Strictness model.Strictness
	Hierarchy  model.HierarchyMode
}

// Parser turns structural Verilog source text into a model.Module. A
// Parser holds no per-parse state and may be reused across calls.
type Parser struct {
	opts ParserOptions
}

// NewParser creates a Parser with the given options.
func NewParser(opts ParserOptions) *Parser {
	return &Parser{opts: opts}
}

var (
	moduleRe    = regexp.MustCompile(`^module\s+(\w+)\s*(?:\((.*)\))?\s*$`)
	ioDeclRe    = regexp.MustCompile(`^(input|output|inout)\s*(\[[^\]]+\])?\s*(.+)$`)
	netDeclRe   = regexp.MustCompile(`^(wire|reg)\s*(\[[^\]]+\])?\s*(.+)$`)
	assignRe    = regexp.MustCompile(`^assign\s+([\w.]+)(?:\[\d+\])?\s*=\s*(.+)$`)
	instRe      = regexp.MustCompile(`^(\w+)\s+([\w.$]+)\s*\((.*)\)$`)
	namedConnRe = regexp.MustCompile(`\.(\w+)\s*\(\s*([^()]*?)\s*\)`)
	widthRe     = regexp.MustCompile(`\[\s*(\d+)\s*:\s*(\d+)\s*\]`)
	alwaysRe    = regexp.MustCompile(`^always\s*@\s*\(\s*(posedge|negedge)\s+(\w+)(?:\s+or\s+(posedge|negedge)\s+(\w+))?\s*\)`)
	nbaRe       = regexp.MustCompile(`([\w.]+)(?:\[\d+\])?\s*<=\s*([^;]+);`)
	resetIfRe   = regexp.MustCompile(`if\s*\(\s*(!|~)?\s*([\w.]+)\s*\)`)
	netRefRe    = regexp.MustCompile(`^~?\s*([\w.]+)(\[\d+\])?$`)
	constRe     = regexp.MustCompile(`^\d+'[bdh][0-9a-fA-FxXzZ_]+$`)
)

// outputPortNames are the conventional output pin names of library cells.
var outputPortNames = map[string]bool{
	"Y": true, "Q": true, "QN": true, "Z": true, "ZN": true, "OUT": true, "O": true,
}

// verilogPrimitives maps the built-in gate primitives to cell types. These
// instantiate output-first with positional connections.
var verilogPrimitives = map[string]model.CellType{
	"and": model.CellAND, "or": model.CellOR, "not": model.CellNOT,
	"nand": model.CellNAND, "nor": model.CellNOR, "xor": model.CellXOR,
	"xnor": model.CellXNOR, "buf": model.CellBUF,
}

// ClassifyCell maps a library cell name such as NAND2_X1 or DFFR_X2 to its
// cell type. Match order matters: NAND before AND, XNOR before NOR, and so
// on, because the names nest.
func ClassifyCell(cellName string) model.CellType {
	name := strings.ToUpper(cellName)
	switch {
	case strings.Contains(name, "XNOR"):
		return model.CellXNOR
	case strings.Contains(name, "XOR"):
		return model.CellXOR
	case strings.Contains(name, "NAND"):
		return model.CellNAND
	case strings.Contains(name, "NOR"):
		return model.CellNOR
	case strings.Contains(name, "AND"):
		return model.CellAND
	case strings.Contains(name, "NOT"), strings.Contains(name, "INV"):
		return model.CellNOT
	case strings.Contains(name, "BUF"):
		return model.CellBUF
	case strings.Contains(name, "DFF"), strings.Contains(name, "SDFF"):
		return model.CellDFF
	case strings.Contains(name, "MUX"):
		return model.CellMUX
	case strings.Contains(name, "OR"):
		return model.CellOR
	default:
		return model.CellUnknown
	}
}

// statement is one semicolon- or block-delimited construct with its
// starting line, kept for error positions.
type statement struct {
	text string
	line int
}

// rawModule is the pre-elaboration form of one module definition.
type rawModule struct {
	name       string
	headerLine int
	ports      []model.Port
	portDirs   map[string]string // name -> input/output, from decls
	portOrder  []string
	widths     map[string]int
	netOrder   []string
	netSet     map[string]bool
	regs       map[string]bool
	gates      []*model.Gate
	instances  []rawInstance
	warnings   []string
}

type rawInstance struct {
	cellName string
	instName string
	conns    []rawConn
	line     int
}

type rawConn struct {
	port string // "" for positional
	net  string
}

// Parse builds a Module from netlist source text. file is used only for
// error positions.
func (p *Parser) Parse(file string, src []byte) (*model.Module, error) {
	clean := stripComments(string(src))
	stmts := splitStatements(clean)

	raws, order, err := p.collectModules(file, stmts)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, &model.ParseError{File: file, Line: 1, Msg: "no module definition found"}
	}

	top := p.pickTop(raws, order)
	mod, err := p.elaborate(file, raws, top)
	if err != nil {
		return nil, err
	}
	if err := p.connect(file, mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// pickTop chooses the module not instantiated by any other; falls back to
// the first definition.
func (p *Parser) pickTop(raws map[string]*rawModule, order []string) *rawModule {
	instantiated := make(map[string]bool)
	for _, rm := range raws {
		for _, inst := range rm.instances {
			instantiated[inst.cellName] = true
		}
	}
	for _, name := range order {
		if !instantiated[name] {
			return raws[name]
		}
	}
	return raws[order[0]]
}

// collectModules parses every module definition in the source.
func (p *Parser) collectModules(file string, stmts []statement) (map[string]*rawModule, []string, error) {
	raws := make(map[string]*rawModule)
	var order []string
	var cur *rawModule

	for _, st := range stmts {
		text := strings.TrimSpace(st.text)
		if text == "" {
			continue
		}
		if m := moduleRe.FindStringSubmatch(text); m != nil {
			if cur != nil {
				return nil, nil, &model.ParseError{File: file, Line: st.line, Token: "module", Msg: "nested module definition"}
			}
			cur = newRawModule(m[1], st.line)
			if err := cur.parseHeaderPorts(file, st.line, m[2]); err != nil {
				return nil, nil, err
			}
			raws[cur.name] = cur
			order = append(order, cur.name)
			continue
		}
		if text == "endmodule" {
			if cur == nil {
				return nil, nil, &model.ParseError{File: file, Line: st.line, Token: "endmodule", Msg: "endmodule outside module"}
			}
			cur = nil
			continue
		}
		if cur == nil {
			if p.opts.Strictness == model.Strict {
				return nil, nil, &model.ParseError{File: file, Line: st.line, Token: firstToken(text), Msg: "statement outside module"}
			}
			continue
		}
		if err := p.parseStatement(file, cur, st); err != nil {
			return nil, nil, err
		}
	}
	return raws, order, nil
}

func newRawModule(name string, line int) *rawModule {
	return &rawModule{
		name:       name,
		headerLine: line,
		portDirs:   make(map[string]string),
		widths:     make(map[string]int),
		netSet:     make(map[string]bool),
		regs:       make(map[string]bool),
	}
}

func (rm *rawModule) declareNet(name string) {
	if !rm.netSet[name] {
		rm.netSet[name] = true
		rm.netOrder = append(rm.netOrder, name)
	}
}

// parseHeaderPorts handles both ANSI and non-ANSI port lists.
func (rm *rawModule) parseHeaderPorts(file string, line int, list string) error {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		dir := ""
		for _, kw := range []string{"input", "output", "inout"} {
			if strings.HasPrefix(item, kw+" ") || strings.HasPrefix(item, kw+"\t") || strings.HasPrefix(item, kw+"[") {
				dir = kw
				item = strings.TrimSpace(strings.TrimPrefix(item, kw))
				break
			}
		}
		width := 1
		if wm := widthRe.FindStringSubmatch(item); wm != nil {
			width = parseWidth(wm)
			item = strings.TrimSpace(widthRe.ReplaceAllString(item, ""))
		}
		fields := strings.Fields(item)
		if len(fields) == 0 {
			return &model.ParseError{File: file, Line: line, Token: item, Msg: "malformed port declaration"}
		}
		name := fields[len(fields)-1]
		rm.portOrder = append(rm.portOrder, name)
		rm.widths[name] = width
		rm.declareNet(name)
		if dir != "" {
			rm.portDirs[name] = dir
			rm.ports = append(rm.ports, model.Port{Name: name, IsInput: dir == "input", Width: width})
		}
	}
	return nil
}

func parseWidth(m []string) int {
	hi, _ := strconv.Atoi(m[1])
	lo, _ := strconv.Atoi(m[2])
	if hi < lo {
		hi, lo = lo, hi
	}
	return hi - lo + 1
}

func (p *Parser) parseStatement(file string, rm *rawModule, st statement) error {
	text := strings.TrimSpace(st.text)

	if m := ioDeclRe.FindStringSubmatch(text); m != nil && (strings.HasPrefix(text, "input") || strings.HasPrefix(text, "output") || strings.HasPrefix(text, "inout")) {
		return rm.parseIODecl(file, st.line, m)
	}
	if m := netDeclRe.FindStringSubmatch(text); m != nil && (strings.HasPrefix(text, "wire") || strings.HasPrefix(text, "reg")) {
		return rm.parseNetDecl(m)
	}
	if m := assignRe.FindStringSubmatch(text); m != nil {
		return p.parseAssign(file, rm, st.line, m[1], m[2])
	}
	if alwaysRe.MatchString(text) {
		return p.parseAlways(file, rm, st.line, text)
	}
	if strings.HasPrefix(text, "always") || strings.HasPrefix(text, "initial") ||
		strings.HasPrefix(text, "generate") || strings.HasPrefix(text, "parameter") ||
		strings.HasPrefix(text, "localparam") || strings.HasPrefix(text, "function") ||
		strings.HasPrefix(text, "task") {
		return p.unsupported(file, rm, st.line, firstToken(text), "unsupported procedural construct")
	}
	if m := instRe.FindStringSubmatch(text); m != nil {
		return p.parseInstance(file, rm, st.line, m)
	}
	return p.unsupported(file, rm, st.line, firstToken(text), "unrecognized statement")
}

// unsupported applies the configured strictness: warn and skip, or fail.
func (p *Parser) unsupported(file string, rm *rawModule, line int, token, msg string) error {
	if p.opts.Strictness == model.Strict {
		return &model.ParseError{File: file, Line: line, Token: token, Msg: msg}
	}
	rm.warnings = append(rm.warnings, fmt.Sprintf("%s:%d: skipped: %s (near %q)", file, line, msg, token))
	return nil
}

// unsupportedDriver is unsupported for constructs that drive a known net.
// In lenient mode the target keeps a placeholder driver so the skip stays
// non-fatal downstream: without one the analyzer would reject the net as
// driverless.
func (p *Parser) unsupportedDriver(file string, rm *rawModule, line int, target, token, msg string) error {
	if err := p.unsupported(file, rm, line, token, msg); err != nil {
		return err
	}
	placeholderDriver(rm, target)
	return nil
}

// placeholderDriver gives a lenient-skipped target net an opaque source
// gate, the same treatment unknown cells get.
func placeholderDriver(rm *rawModule, target string) {
	rm.declareNet(target)
	rm.gates = append(rm.gates, &model.Gate{
		Name:     fmt.Sprintf("skip_%s", strings.ReplaceAll(target, ".", "_")),
		Type:     model.CellBlackbox,
		CellName: "SKIPPED",
		Output:   target,
	})
}

func (rm *rawModule) parseIODecl(file string, line int, m []string) error {
	dir := m[1]
	width := 1
	if m[2] != "" {
		if wm := widthRe.FindStringSubmatch(m[2]); wm != nil {
			width = parseWidth(wm)
		}
	}
	for _, name := range splitNames(m[3]) {
		rm.widths[name] = width
		rm.declareNet(name)
		if _, seen := rm.portDirs[name]; !seen {
			rm.portDirs[name] = dir
			rm.ports = append(rm.ports, model.Port{Name: name, IsInput: dir == "input", Width: width})
		}
	}
	_ = file
	_ = line
	return nil
}

func (rm *rawModule) parseNetDecl(m []string) error {
	width := 1
	if m[2] != "" {
		if wm := widthRe.FindStringSubmatch(m[2]); wm != nil {
			width = parseWidth(wm)
		}
	}
	isReg := m[1] == "reg"
	for _, name := range splitNames(m[3]) {
		rm.widths[name] = width
		rm.declareNet(name)
		if isReg {
			rm.regs[name] = true
		}
	}
	return nil
}

func splitNames(list string) []string {
	var names []string
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			names = append(names, f)
		}
	}
	return names
}

// parseAssign materializes a continuous assignment as an implicit gate.
// Supported shapes: plain copy, inversion, and a single reduction of one
// of & | ^ over net references (each possibly inverted as a whole is not
// supported; ~ applies to single-net copies only).
func (p *Parser) parseAssign(file string, rm *rawModule, line int, lhs, rhs string) error {
	rhs = strings.TrimSpace(rhs)
	rm.declareNet(lhs)

	gateName := fmt.Sprintf("assign_%s", strings.ReplaceAll(lhs, ".", "_"))

	var op string
	for _, candidate := range []string{"&", "|", "^"} {
		if strings.Contains(rhs, candidate) {
			op = candidate
			break
		}
	}

	if op == "" {
		// Plain copy or inversion of a single reference.
		if constRe.MatchString(rhs) {
			return p.unsupportedDriver(file, rm, line, lhs, rhs, "constant assignment")
		}
		m := netRefRe.FindStringSubmatch(rhs)
		if m == nil {
			return p.unsupportedDriver(file, rm, line, lhs, rhs, "unsupported assignment expression")
		}
		ct := model.CellBUF
		if strings.HasPrefix(rhs, "~") {
			ct = model.CellNOT
		}
		rm.declareNet(m[1])
		rm.gates = append(rm.gates, &model.Gate{
			Name: gateName, Type: ct, CellName: ct.String(),
			Inputs: []string{m[1]}, Output: lhs,
		})
		return nil
	}

	opType := map[string]model.CellType{"&": model.CellAND, "|": model.CellOR, "^": model.CellXOR}[op]
	var inputs []string
	for _, term := range strings.Split(rhs, op) {
		term = strings.TrimSpace(strings.Trim(strings.TrimSpace(term), "()"))
		m := netRefRe.FindStringSubmatch(term)
		if m == nil || strings.HasPrefix(term, "~") {
			return p.unsupportedDriver(file, rm, line, lhs, term, "unsupported assignment operand")
		}
		rm.declareNet(m[1])
		inputs = append(inputs, m[1])
	}
	rm.gates = append(rm.gates, &model.Gate{
		Name: gateName, Type: opType, CellName: opType.String(),
		Inputs: inputs, Output: lhs,
	})
	return nil
}

// parseAlways recognizes the canonical edge-triggered register idiom: a
// clock edge, an optional reset edge with an if(reset) arm, and a single
// non-blocking assignment per register. Anything else is unsupported.
func (p *Parser) parseAlways(file string, rm *rawModule, line int, text string) error {
	hdr := alwaysRe.FindStringSubmatch(text)
	clock := hdr[2]
	reset := hdr[4]
	body := text[len(hdr[0]):]

	assigns := nbaRe.FindAllStringSubmatch(body, -1)
	if len(assigns) == 0 {
		return p.unsupported(file, rm, line, "always", "always block without non-blocking assignment")
	}

	// With a reset edge the first assignment is the reset arm; the data
	// assignment is the last one. Both must target the same register.
	target := assigns[len(assigns)-1][1]
	dataExpr := strings.TrimSpace(assigns[len(assigns)-1][2])
	for _, a := range assigns {
		if a[1] != target {
			if err := p.unsupported(file, rm, line, a[1], "multiple registers in one always block"); err != nil {
				return err
			}
			seen := make(map[string]bool)
			for _, b := range assigns {
				if !seen[b[1]] {
					seen[b[1]] = true
					placeholderDriver(rm, b[1])
				}
			}
			return nil
		}
	}
	if reset != "" {
		if m := resetIfRe.FindStringSubmatch(body); m != nil && m[2] != reset {
			return p.unsupportedDriver(file, rm, line, target, m[2], "reset condition does not match reset edge")
		}
	}

	m := netRefRe.FindStringSubmatch(dataExpr)
	if m == nil || strings.HasPrefix(dataExpr, "~") {
		return p.unsupportedDriver(file, rm, line, target, dataExpr, "register data expression is not a simple net")
	}
	data := m[1]

	rm.declareNet(target)
	rm.declareNet(data)
	rm.declareNet(clock)
	inputs := []string{data, clock}
	if reset != "" {
		rm.declareNet(reset)
		inputs = append(inputs, reset)
	}
	rm.gates = append(rm.gates, &model.Gate{
		Name: fmt.Sprintf("dff_%s", strings.ReplaceAll(target, ".", "_")),
		Type: model.CellDFF, CellName: "DFF",
		Inputs: inputs, Output: target,
	})
	return nil
}

// parseInstance handles primitive gates, library cells and submodule
// instances. Primitives and library cells become gates immediately;
// everything else is deferred to elaboration.
func (p *Parser) parseInstance(file string, rm *rawModule, line int, m []string) error {
	cellName, instName, connText := m[1], m[2], m[3]

	conns, err := parseConnections(connText)
	if err != nil {
		return p.unsupported(file, rm, line, connText, err.Error())
	}
	for i := range conns {
		if conns[i].net != "" {
			rm.declareNet(conns[i].net)
		}
	}

	if ct, ok := verilogPrimitives[cellName]; ok {
		if len(conns) < 2 {
			return &model.ParseError{File: file, Line: line, Token: instName, Msg: "primitive needs an output and at least one input"}
		}
		var inputs []string
		for _, c := range conns[1:] {
			inputs = append(inputs, c.net)
		}
		rm.gates = append(rm.gates, &model.Gate{
			Name: instName, Type: ct, CellName: cellName,
			Inputs: inputs, Output: conns[0].net,
		})
		return nil
	}

	// Library cells and submodules are resolved during elaboration, when
	// all module definitions are known.
	rm.instances = append(rm.instances, rawInstance{
		cellName: cellName, instName: instName, conns: conns, line: line,
	})
	return nil
}

func parseConnections(text string) ([]rawConn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if strings.Contains(text, ".") {
		matches := namedConnRe.FindAllStringSubmatch(text, -1)
		if matches == nil {
			return nil, fmt.Errorf("malformed named connection list")
		}
		var conns []rawConn
		for _, m := range matches {
			net := normalizeNetRef(m[2])
			conns = append(conns, rawConn{port: m[1], net: net})
		}
		return conns, nil
	}
	var conns []rawConn
	for _, f := range strings.Split(text, ",") {
		conns = append(conns, rawConn{net: normalizeNetRef(strings.TrimSpace(f))})
	}
	return conns, nil
}

// normalizeNetRef strips a bit select; SCOAP is computed per vector net.
func normalizeNetRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexByte(ref, '['); i >= 0 {
		ref = ref[:i]
	}
	return ref
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// stripComments removes // and /* */ comments while preserving newlines so
// statement line numbers stay accurate.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		if strings.HasPrefix(src[i:], "//") {
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue
		}
		if strings.HasPrefix(src[i:], "/*") {
			i += 2
			for i < len(src) && !strings.HasPrefix(src[i:], "*/") {
				if src[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			if i < len(src) {
				i += 2
			}
			continue
		}
		b.WriteByte(src[i])
		i++
	}
	return b.String()
}

// splitStatements cuts the source into statements. Ordinary statements end
// at ';'. An always statement swallows its begin/end block. The module
// header ends at ';' like any statement; endmodule stands alone.
func splitStatements(src string) []statement {
	var stmts []statement
	line := 1
	start := 1
	var buf strings.Builder

	flush := func() {
		// Statements span lines in real netlists (wide port lists, wrapped
		// connection lists); collapse internal whitespace so the
		// line-oriented regexes match.
		text := strings.Join(strings.Fields(buf.String()), " ")
		buf.Reset()
		if text != "" {
			stmts = append(stmts, statement{text: strings.TrimSuffix(text, ";"), line: start})
		}
	}

	depth := 0 // begin/end nesting inside an always statement
	inAlways := false

	words := func(s string) string { // last word of the buffer
		f := strings.Fields(s)
		if len(f) == 0 {
			return ""
		}
		return f[len(f)-1]
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\n' {
			line++
		}
		if buf.Len() == 0 || strings.TrimSpace(buf.String()) == "" {
			start = line
		}
		buf.WriteByte(c)

		trimmed := strings.TrimSpace(buf.String())
		if !inAlways && (strings.HasPrefix(trimmed, "always") || strings.HasPrefix(trimmed, "initial")) {
			inAlways = true
			depth = 0
		}

		if inAlways {
			last := words(trimmed)
			if last == "begin" && isWordBoundary(src, i+1) {
				depth++
				continue
			}
			if last == "end" && isWordBoundary(src, i+1) {
				depth--
				if depth <= 0 {
					inAlways = false
					flush()
				}
				continue
			}
			if c == ';' && depth == 0 {
				inAlways = false
				flush()
			}
			continue
		}

		if c == ';' {
			flush()
			continue
		}
		if strings.HasSuffix(trimmed, "endmodule") && isWordBoundary(src, i+1) {
			// Both sides must be boundaries: an identifier such as
			// x_endmodule is not a statement end.
			rest := strings.TrimSuffix(trimmed, "endmodule")
			if rest == "" || !isWordByte(rest[len(rest)-1]) {
				flush()
				continue
			}
		}
	}
	flush()
	return stmts
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isWordBoundary(src string, i int) bool {
	if i >= len(src) {
		return true
	}
	return !isWordByte(src[i])
}
