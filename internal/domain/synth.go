package domain

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/hwsec-lab/trojanforge/internal/model"
)

// SynthOptions configures the Trojan synthesis engine.
type SynthOptions struct {
	// Seed is the master seed. Each insertion derives its own sub-stream
	// from it, so insertions reproduce identically regardless of the
	// order or concurrency they run with.
	Seed int64
	// DisjointNets removes nets already used by earlier insertions from
	// later candidate pools.
	DisjointNets bool
	// CounterWidth is the counter trigger width in bits (default 16).
	CounterWidth int
	// TriggerNets is the number of nets a trigger draws (default 3,
	// minimum 2 for combinational triggers).
	TriggerNets int
	// Now supplies the timestamp embedded in markers and records. The
	// clock is the only non-seeded input to code generation; pinning it
	// makes output byte-for-byte reproducible.
	Now func() time.Time
}

// Synthesizer plans Trojan insertions against a ranked net list and
// materializes each one as a modified copy of the original netlist text.
// The original text and graph are never mutated.
type Synthesizer struct {
	opts      SynthOptions
	module    *model.Module
	source    string
	insertAt  int // byte offset of the closing module boundary
	pool      []model.RankedNet
	scores    map[string]float64
	clock     string
	reset     string
	resetLow  bool
}

var endmoduleRe = regexp.MustCompile(`\bendmodule\b`)

// clockNames and resetNames drive boundary-port discovery for sequential
// trigger generation.
var (
	clockNames = []string{"clk", "clock", "clk_i", "i_clk"}
	resetNames = []string{"rst", "reset", "rst_n", "rst_ni", "resetn", "i_rst"}
)

// NewSynthesizer locates the insertion boundary and prepares the candidate
// pool. Fails with ErrBoundaryNotFound when the module closing marker is
// missing.
func NewSynthesizer(module *model.Module, source []byte, ranking *model.Ranking, opts SynthOptions) (*Synthesizer, error) {
	if opts.CounterWidth < 2 || opts.CounterWidth > 63 {
		opts.CounterWidth = 16
	}
	if opts.TriggerNets < 2 {
		opts.TriggerNets = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	loc := endmoduleRe.FindStringIndex(string(source))
	if loc == nil {
		return nil, model.ErrBoundaryNotFound
	}

	s := &Synthesizer{
		opts:     opts,
		module:   module,
		source:   string(source),
		insertAt: loc[0],
		pool:     ranking.TargetNets,
		scores:   make(map[string]float64, len(ranking.TargetNets)),
	}
	for _, rn := range ranking.TargetNets {
		s.scores[rn.Name] = rn.Score
	}
	s.clock, _ = findPort(module, clockNames)
	s.reset, s.resetLow = findPort(module, resetNames)
	return s, nil
}

func findPort(module *model.Module, candidates []string) (string, bool) {
	for _, port := range module.Ports {
		if !port.IsInput {
			continue
		}
		lower := strings.ToLower(port.Name)
		for _, cand := range candidates {
			if lower == cand {
				return port.Name, strings.HasSuffix(lower, "n") || strings.HasSuffix(lower, "ni")
			}
		}
	}
	return "", false
}

// Clock returns the discovered clock port, "" when the design has none.
func (s *Synthesizer) Clock() string { return s.clock }

// Plan builds the TrojanSpec for insertion id (1-based). Kind selection
// cycles through the trigger x payload cross product when total exceeds
// the number of combinations, guaranteeing type diversity; otherwise both
// kinds are sampled from the insertion's sub-stream.
func (s *Synthesizer) Plan(id, total int, used map[string]bool) (model.TrojanSpec, error) {
	rng := s.subStream(id)

	var trigger model.TriggerType
	var payload model.PayloadType
	if total > len(model.TriggerTypes)*len(model.PayloadTypes) {
		trigger = model.TriggerTypes[(id-1)%len(model.TriggerTypes)]
		payload = model.PayloadTypes[((id-1)/len(model.TriggerTypes))%len(model.PayloadTypes)]
	} else {
		trigger = model.TriggerTypes[rng.Intn(len(model.TriggerTypes))]
		payload = model.PayloadTypes[rng.Intn(len(model.PayloadTypes))]
	}

	// Sequential and counter triggers need a clock; designs without one
	// degrade to a combinational trigger.
	if s.clock == "" && trigger != model.TriggerCombinational {
		trigger = model.TriggerCombinational
	}

	pool := s.pool
	if s.opts.DisjointNets && len(used) > 0 {
		pool = nil
		for _, rn := range s.pool {
			if !used[rn.Name] {
				pool = append(pool, rn)
			}
		}
	}
	window := selectWindow(pool, id)
	if len(window) < 2 {
		return model.TrojanSpec{}, &model.InsufficientNetsError{Requested: 2, Available: len(window)}
	}

	k := s.opts.TriggerNets
	if k > len(window) {
		k = len(window)
	}
	spec := model.TrojanSpec{
		ID:           id,
		Trigger:      trigger,
		Payload:      payload,
		PayloadNet:   window[0].Name,
		LeakSource:   window[1].Name,
		CounterWidth: s.opts.CounterWidth,
	}
	for _, rn := range window[:k] {
		spec.TriggerNets = append(spec.TriggerNets, rn.Name)
	}

	for _, name := range append(append([]string(nil), spec.TriggerNets...), spec.PayloadNet, spec.LeakSource) {
		if s.module.NetByName(name) == nil {
			return model.TrojanSpec{}, &model.NetNotFoundError{Net: name}
		}
	}
	return spec, nil
}

// subStream derives the per-insertion generator from the master seed and
// the insertion index.
func (s *Synthesizer) subStream(id int) *rand.Rand {
	return rand.New(rand.NewSource(s.opts.Seed + int64(id)*1_000_003))
}

// selectWindow rotates a window of candidates through the ranked pool the
// same way successive insertions rotate through the top nets.
func selectWindow(pool []model.RankedNet, id int) []model.RankedNet {
	const windowSize = 10
	if len(pool) == 0 {
		return nil
	}
	span := len(pool) - windowSize
	if span < 1 {
		span = 1
	}
	start := ((id - 1) * windowSize) % span
	end := start + windowSize
	if end > len(pool) {
		end = len(pool)
	}
	return pool[start:end]
}

// Generate materializes one planned insertion: the full modified netlist
// text plus its InsertionRecord. The generated block is placed immediately
// before the module closing boundary, wrapped in start/end markers.
func (s *Synthesizer) Generate(spec model.TrojanSpec) (string, model.InsertionRecord, error) {
	now := s.opts.Now().UTC().Format(time.RFC3339)
	block := s.generateBlock(spec, now)

	modified := s.source[:s.insertAt] + block + s.source[s.insertAt:]

	rec := model.InsertionRecord{
		ID:             spec.ID,
		Trigger:        spec.Trigger,
		Payload:        spec.Payload,
		TriggerNets:    spec.TriggerNets,
		PayloadNet:     spec.PayloadNet,
		PayloadScore:   s.scores[spec.PayloadNet],
		EstimatedGates: estimateGates(spec),
		OutputFile:     s.OutputFileName(spec),
		Timestamp:      now,
	}
	for _, name := range spec.TriggerNets {
		rec.TriggerScores = append(rec.TriggerScores, s.scores[name])
	}
	return modified, rec, nil
}

// OutputFileName returns the per-insertion netlist file name.
func (s *Synthesizer) OutputFileName(spec model.TrojanSpec) string {
	return fmt.Sprintf("%s_trojan_%03d_%s_%s.v", s.module.Name, spec.ID, spec.Trigger, spec.Payload)
}

func estimateGates(spec model.TrojanSpec) int {
	gates := 5 // payload mux
	switch spec.Trigger {
	case model.TriggerCombinational:
		gates += 5
	case model.TriggerSequential:
		gates += 15
	case model.TriggerCounter:
		gates += 20
	}
	return gates
}

func (s *Synthesizer) generateBlock(spec model.TrojanSpec, now string) string {
	var b strings.Builder
	id := spec.ID
	triggerSig := fmt.Sprintf("trojan_trigger_%d", id)

	fmt.Fprintf(&b, "\n  // === TROJAN %d START trigger=%s payload=%s ===\n", id, spec.Trigger, spec.Payload)
	fmt.Fprintf(&b, "  // Inserted: %s\n", now)

	switch spec.Trigger {
	case model.TriggerCombinational:
		s.emitCombinationalTrigger(&b, spec, triggerSig)
	case model.TriggerSequential:
		s.emitSequentialTrigger(&b, spec, triggerSig)
	case model.TriggerCounter:
		s.emitCounterTrigger(&b, spec, triggerSig)
	}

	s.emitPayload(&b, spec, triggerSig)
	fmt.Fprintf(&b, "  // === TROJAN %d END ===\n", id)
	return b.String()
}

// emitCombinationalTrigger produces a reduction-AND of the trigger nets: a
// rare coincidence with zero added state.
func (s *Synthesizer) emitCombinationalTrigger(b *strings.Builder, spec model.TrojanSpec, sig string) {
	terms := make([]string, len(spec.TriggerNets))
	for i, net := range spec.TriggerNets {
		terms[i] = "(" + net + ")"
	}
	fmt.Fprintf(b, "  wire %s;\n", sig)
	fmt.Fprintf(b, "  assign %s = %s;\n", sig, strings.Join(terms, " & "))
}

// emitSequentialTrigger produces a small sequence detector: one state
// advance per clock edge when the expected net matches, reset to the
// initial state on mismatch, armed at the terminal state.
func (s *Synthesizer) emitSequentialTrigger(b *strings.Builder, spec model.TrojanSpec, sig string) {
	id := spec.ID
	state := fmt.Sprintf("trojan_state_%d", id)
	nets := spec.TriggerNets
	if len(nets) > 3 {
		nets = nets[:3]
	}

	fmt.Fprintf(b, "  reg [1:0] %s;\n", state)
	fmt.Fprintf(b, "  wire %s;\n", sig)
	fmt.Fprintf(b, "  always @(%s) begin\n", s.edgeList())
	fmt.Fprintf(b, "    if (%s)\n", s.resetCond())
	fmt.Fprintf(b, "      %s <= 2'b00;\n", state)
	fmt.Fprintf(b, "    else begin\n")
	fmt.Fprintf(b, "      case (%s)\n", state)
	for i, net := range nets {
		fmt.Fprintf(b, "        2'b%02b: %s <= (%s) ? 2'b%02b : 2'b00;\n", i, state, net, i+1)
	}
	fmt.Fprintf(b, "        default: %s <= %s;\n", state, state)
	fmt.Fprintf(b, "      endcase\n")
	fmt.Fprintf(b, "    end\n")
	fmt.Fprintf(b, "  end\n")
	fmt.Fprintf(b, "  assign %s = (%s == 2'b%02b);\n", sig, state, len(nets))
}

// emitCounterTrigger produces a counter that advances while the first
// trigger net is asserted and fires when it saturates at all ones.
func (s *Synthesizer) emitCounterTrigger(b *strings.Builder, spec model.TrojanSpec, sig string) {
	id := spec.ID
	counter := fmt.Sprintf("trojan_counter_%d", id)
	w := spec.CounterWidth

	fmt.Fprintf(b, "  reg [%d:0] %s;\n", w-1, counter)
	fmt.Fprintf(b, "  wire %s;\n", sig)
	fmt.Fprintf(b, "  always @(%s) begin\n", s.edgeList())
	fmt.Fprintf(b, "    if (%s)\n", s.resetCond())
	fmt.Fprintf(b, "      %s <= %d'd0;\n", counter, w)
	fmt.Fprintf(b, "    else if (%s)\n", spec.TriggerNets[0])
	fmt.Fprintf(b, "      %s <= %s + %d'd1;\n", counter, counter, w)
	fmt.Fprintf(b, "  end\n")
	fmt.Fprintf(b, "  assign %s = (%s == {%d{1'b1}});\n", sig, counter, w)
}

// emitPayload gates the effect with the trigger signal. The false branch
// is always the unmodified behavior, which is what keeps the design
// transparent while dormant.
func (s *Synthesizer) emitPayload(b *strings.Builder, spec model.TrojanSpec, sig string) {
	id := spec.ID
	payloadSig := fmt.Sprintf("trojan_payload_%d", id)
	fmt.Fprintf(b, "  // Payload: %s\n", spec.Payload)
	fmt.Fprintf(b, "  wire %s;\n", payloadSig)
	switch spec.Payload {
	case model.PayloadLeakage:
		fmt.Fprintf(b, "  assign %s = %s ? %s : 1'b0;\n", payloadSig, sig, spec.LeakSource)
	case model.PayloadDOS:
		fmt.Fprintf(b, "  assign %s = %s ? 1'b0 : %s;\n", payloadSig, sig, spec.PayloadNet)
	case model.PayloadCorruption:
		fmt.Fprintf(b, "  assign %s = %s ? ~(%s) : %s;\n", payloadSig, sig, spec.PayloadNet, spec.PayloadNet)
	}
}

func (s *Synthesizer) edgeList() string {
	if s.reset == "" {
		return fmt.Sprintf("posedge %s", s.clock)
	}
	edge := "posedge"
	if s.resetLow {
		edge = "negedge"
	}
	return fmt.Sprintf("posedge %s or %s %s", s.clock, edge, s.reset)
}

func (s *Synthesizer) resetCond() string {
	if s.reset == "" {
		return "1'b0"
	}
	if s.resetLow {
		return "!" + s.reset
	}
	return s.reset
}
