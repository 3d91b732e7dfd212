package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/hwsec-lab/trojanforge/internal/domain"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

const synthNetlist = `
module crypto_core (input clk, input rst_n, input a, input b, output y);
  wire n1, n2, n3, n4;
  NAND2_X1 g1 (.A(a), .B(b), .Y(n1));
  INV_X1 g2 (.A(n1), .Y(n2));
  AND2_X1 g3 (.A(n2), .B(a), .Y(n3));
  OR2_X1 g4 (.A(n3), .B(n1), .Y(n4));
  INV_X1 g5 (.A(n4), .Y(y));
endmodule
`

func pinnedClock() func() time.Time {
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestSynthesizer(t *testing.T, src string, opts domain.SynthOptions) *domain.Synthesizer {
	t.Helper()
	mod := parse(t, domain.ParserOptions{}, src)
	ranking := &m.Ranking{
		NumNets: 4,
		TargetNets: []m.RankedNet{
			{Name: "n3", Score: 0.91},
			{Name: "n2", Score: 0.85},
			{Name: "n4", Score: 0.72},
			{Name: "n1", Score: 0.60},
		},
	}
	s, err := domain.NewSynthesizer(mod, []byte(src), ranking, opts)
	require.NoError(t, err)
	return s
}

func TestSynthesizerDeterminism(t *testing.T) {
	opts := domain.SynthOptions{Seed: 42, Now: pinnedClock()}

	run := func() []string {
		s := newTestSynthesizer(t, synthNetlist, opts)
		var outs []string
		for id := 1; id <= 5; id++ {
			spec, err := s.Plan(id, 5, nil)
			require.NoError(t, err)
			text, _, err := s.Generate(spec)
			require.NoError(t, err)
			outs = append(outs, text)
		}
		return outs
	}

	first := run()
	second := run()
	require.Equal(t, first, second, "same seed and clock must reproduce byte-identical netlists")
}

func TestSynthesizerSeedChangesSelection(t *testing.T) {
	a := newTestSynthesizer(t, synthNetlist, domain.SynthOptions{Seed: 1, Now: pinnedClock()})
	b := newTestSynthesizer(t, synthNetlist, domain.SynthOptions{Seed: 99, Now: pinnedClock()})

	differs := false
	for id := 1; id <= 9; id++ {
		specA, err := a.Plan(id, 9, nil)
		require.NoError(t, err)
		specB, err := b.Plan(id, 9, nil)
		require.NoError(t, err)
		if specA.Trigger != specB.Trigger || specA.Payload != specB.Payload {
			differs = true
		}
	}
	require.True(t, differs, "different seeds should pick different trojan kinds")
}

func TestSynthesizerKindCycling(t *testing.T) {
	s := newTestSynthesizer(t, synthNetlist, domain.SynthOptions{Seed: 7, Now: pinnedClock()})

	// With more insertions than trigger x payload combinations, kinds
	// cycle instead of being sampled.
	total := 12
	for id := 1; id <= total; id++ {
		spec, err := s.Plan(id, total, nil)
		require.NoError(t, err)
		require.Equal(t, m.TriggerTypes[(id-1)%3], spec.Trigger, "id %d", id)
		require.Equal(t, m.PayloadTypes[((id-1)/3)%3], spec.Payload, "id %d", id)
	}
}

func TestSynthesizerGeneratedBlock(t *testing.T) {
	s := newTestSynthesizer(t, synthNetlist, domain.SynthOptions{Seed: 42, Now: pinnedClock()})

	spec := m.TrojanSpec{
		ID:           1,
		Trigger:      m.TriggerCombinational,
		Payload:      m.PayloadCorruption,
		TriggerNets:  []string{"n1", "n2", "n3"},
		PayloadNet:   "n4",
		CounterWidth: 16,
	}
	text, rec, err := s.Generate(spec)
	require.NoError(t, err)

	require.Contains(t, text, "// === TROJAN 1 START trigger=combinational payload=corruption ===")
	require.Contains(t, text, "// === TROJAN 1 END ===")
	require.Contains(t, text, "// Inserted: 2026-08-25T12:00:00Z")
	require.Contains(t, text, "assign trojan_trigger_1 = (n1) & (n2) & (n3);")
	// Dormant transparency: the false branch is the unmodified signal.
	require.Contains(t, text, "trojan_trigger_1 ? ~(n4) : n4;")

	// The block lands before endmodule, and the original body is intact.
	require.Less(t, strings.Index(text, "TROJAN 1 START"), strings.Index(text, "endmodule"))
	require.Contains(t, text, "NAND2_X1 g1 (.A(a), .B(b), .Y(n1));")

	require.Equal(t, "crypto_core_trojan_001_combinational_corruption.v", rec.OutputFile)
	require.Equal(t, 10, rec.EstimatedGates)
	require.Equal(t, 0.72, rec.PayloadScore)
}

func TestSynthesizerCounterTrigger(t *testing.T) {
	s := newTestSynthesizer(t, synthNetlist, domain.SynthOptions{Seed: 42, CounterWidth: 8, Now: pinnedClock()})

	spec := m.TrojanSpec{
		ID:           2,
		Trigger:      m.TriggerCounter,
		Payload:      m.PayloadDOS,
		TriggerNets:  []string{"n1"},
		PayloadNet:   "n2",
		CounterWidth: 8,
	}
	text, _, err := s.Generate(spec)
	require.NoError(t, err)

	require.Contains(t, text, "reg [7:0] trojan_counter_2;")
	require.Contains(t, text, "trojan_counter_2 == {8{1'b1}}", "counter fires at all ones")
	require.Contains(t, text, "always @(posedge clk or negedge rst_n)")
	require.Contains(t, text, "if (!rst_n)", "active-low reset discovered from the port list")
	require.Contains(t, text, "trojan_trigger_2 ? 1'b0 : n2;")
}

func TestSynthesizerSequentialTrigger(t *testing.T) {
	s := newTestSynthesizer(t, synthNetlist, domain.SynthOptions{Seed: 42, Now: pinnedClock()})

	spec := m.TrojanSpec{
		ID:          3,
		Trigger:     m.TriggerSequential,
		Payload:     m.PayloadLeakage,
		TriggerNets: []string{"n1", "n2"},
		PayloadNet:  "n3",
		LeakSource:  "n4",
	}
	text, _, err := s.Generate(spec)
	require.NoError(t, err)

	require.Contains(t, text, "reg [1:0] trojan_state_3;")
	require.Contains(t, text, "assign trojan_trigger_3 = (trojan_state_3 == 2'b10);")
	require.Contains(t, text, "trojan_trigger_3 ? n4 : 1'b0;")
}

func TestSynthesizerClocklessFallback(t *testing.T) {
	src := `
module comb_only (input a, input b, output y);
  wire n1, n2, n3, n4;
  AND2_X1 g1 (.A(a), .B(b), .Y(n1));
  INV_X1 g2 (.A(n1), .Y(n2));
  OR2_X1 g3 (.A(n2), .B(a), .Y(n3));
  INV_X1 g4 (.A(n3), .Y(n4));
  INV_X1 g5 (.A(n4), .Y(y));
endmodule
`
	s := newTestSynthesizer(t, src, domain.SynthOptions{Seed: 42, Now: pinnedClock()})
	require.Empty(t, s.Clock())

	for id := 1; id <= 9; id++ {
		spec, err := s.Plan(id, 9, nil)
		require.NoError(t, err)
		require.Equal(t, m.TriggerCombinational, spec.Trigger, "clockless designs only get combinational triggers")
	}
}

func TestSynthesizerDisjointNets(t *testing.T) {
	s := newTestSynthesizer(t, synthNetlist, domain.SynthOptions{Seed: 42, DisjointNets: true, TriggerNets: 2, Now: pinnedClock()})

	used := make(map[string]bool)
	spec1, err := s.Plan(1, 2, used)
	require.NoError(t, err)
	for _, net := range spec1.TriggerNets {
		used[net] = true
	}
	used[spec1.PayloadNet] = true

	spec2, err := s.Plan(2, 2, used)
	if err != nil {
		// The pool can drain below the minimum window; that is the
		// documented failure, not a panic.
		var ierr *m.InsufficientNetsError
		require.ErrorAs(t, err, &ierr)
		return
	}
	require.NotEqual(t, spec1.PayloadNet, spec2.PayloadNet)
	for _, net := range spec2.TriggerNets {
		require.False(t, used[net], "net %s reused despite disjoint mode", net)
	}
}

func TestSynthesizerInsufficientPool(t *testing.T) {
	mod := parse(t, domain.ParserOptions{}, synthNetlist)
	ranking := &m.Ranking{NumNets: 1, TargetNets: []m.RankedNet{{Name: "n1", Score: 0.5}}}
	s, err := domain.NewSynthesizer(mod, []byte(synthNetlist), ranking, domain.SynthOptions{Seed: 1, Now: pinnedClock()})
	require.NoError(t, err)

	_, err = s.Plan(1, 1, nil)
	var ierr *m.InsufficientNetsError
	require.ErrorAs(t, err, &ierr)
}

func TestSynthesizerUnknownNet(t *testing.T) {
	mod := parse(t, domain.ParserOptions{}, synthNetlist)
	ranking := &m.Ranking{NumNets: 2, TargetNets: []m.RankedNet{
		{Name: "ghost", Score: 0.9},
		{Name: "n1", Score: 0.5},
	}}
	s, err := domain.NewSynthesizer(mod, []byte(synthNetlist), ranking, domain.SynthOptions{Seed: 1, Now: pinnedClock()})
	require.NoError(t, err)

	_, err = s.Plan(1, 1, nil)
	var nerr *m.NetNotFoundError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, "ghost", nerr.Net)
}

func TestSynthesizerMissingBoundary(t *testing.T) {
	mod := parse(t, domain.ParserOptions{}, synthNetlist)
	_, err := domain.NewSynthesizer(mod, []byte("module broken (input a);"), &m.Ranking{}, domain.SynthOptions{})
	require.ErrorIs(t, err, m.ErrBoundaryNotFound)
}
