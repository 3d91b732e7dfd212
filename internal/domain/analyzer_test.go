package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/hwsec-lab/trojanforge/internal/domain"
	"github.com/hwsec-lab/trojanforge/internal/domain/cells"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

func analyze(t *testing.T, src string, opts domain.AnalyzerOptions) *m.FeatureTable {
	t.Helper()
	mod := parse(t, domain.ParserOptions{}, src)
	c, err := domain.NewCircuit(mod)
	require.NoError(t, err)
	table, err := domain.NewAnalyzer(opts).Analyze(context.Background(), c)
	require.NoError(t, err)
	return table
}

func record(t *testing.T, table *m.FeatureTable, name string) m.FeatureRecord {
	t.Helper()
	for _, rec := range table.Nets {
		if rec.NetName == name {
			return rec
		}
	}
	t.Fatalf("net %s not in feature table", name)
	return m.FeatureRecord{}
}

func TestAnalyzeThreeInputAND(t *testing.T) {
	src := `
module and3 (input a, input b, input c, output y);
  AND3_X1 g1 (.A(a), .B(b), .C(c), .Y(y));
endmodule
`
	table := analyze(t, src, domain.AnalyzerOptions{})

	y := record(t, table, "y")
	require.Equal(t, 2.0, y.CC0)
	require.Equal(t, 4.0, y.CC1)
	require.Equal(t, 0.0, y.CO, "primary outputs are directly observable")
	require.Equal(t, 3, y.FanIn)
	require.Equal(t, 1, y.LogicDepth)
	require.InDelta(t, 0.03, y.TestabilityScore, 1e-9)

	a := record(t, table, "a")
	require.Equal(t, 1.0, a.CC0)
	require.Equal(t, 1.0, a.CC1)
	// Observing a through the AND needs b and c at 1.
	require.Equal(t, 3.0, a.CO)
	require.True(t, a.IsInput)
}

func TestAnalyzeControllabilityGrowsWithDepth(t *testing.T) {
	src := `
module chain (input a, output y);
  wire n1, n2;
  BUF_X1 g1 (.A(a), .Y(n1));
  BUF_X1 g2 (.A(n1), .Y(n2));
  BUF_X1 g3 (.A(n2), .Y(y));
endmodule
`
	table := analyze(t, src, domain.AnalyzerOptions{})

	prev := record(t, table, "a")
	for _, name := range []string{"n1", "n2", "y"} {
		cur := record(t, table, name)
		require.Greater(t, cur.CC0, prev.CC0, "CC0 must grow along %s", name)
		require.Greater(t, cur.CC1, prev.CC1, "CC1 must grow along %s", name)
		prev = cur
	}
}

func TestAnalyzeRegisterBoundaries(t *testing.T) {
	src := `
module seq (input clk, input d, output out);
  wire n;
  reg q;
  BUF_X1 g1 (.A(d), .Y(n));
  always @(posedge clk) begin
    q <= n;
  end
  INV_X1 g2 (.A(q), .Y(out));
endmodule
`
	table := analyze(t, src, domain.AnalyzerOptions{})

	q := record(t, table, "q")
	require.Equal(t, cells.BaseCost, q.CC0, "register outputs are controllability sources")
	require.Equal(t, cells.SequentialPenalty, q.CO, "register outputs are observation sinks")

	// n is observed only through the register: sink penalty plus the
	// register traversal.
	n := record(t, table, "n")
	require.Equal(t, 2*cells.SequentialPenalty, n.CO)
}

func TestAnalyzeParallelMatchesSequential(t *testing.T) {
	src := `
module mix (input a, input b, input c, input d, output y1, output y2);
  wire n1, n2, n3;
  NAND2_X1 g1 (.A(a), .B(b), .Y(n1));
  NOR2_X1 g2 (.A(c), .B(d), .Y(n2));
  XOR2_X1 g3 (.A(n1), .B(n2), .Y(n3));
  INV_X1 g4 (.A(n3), .Y(y1));
  AND2_X1 g5 (.A(n3), .B(a), .Y(y2));
endmodule
`
	seq := analyze(t, src, domain.AnalyzerOptions{Parallelism: 1})
	par := analyze(t, src, domain.AnalyzerOptions{Parallelism: 8})

	require.Equal(t, len(seq.Nets), len(par.Nets))
	for i := range seq.Nets {
		require.Equal(t, seq.Nets[i].NetName, par.Nets[i].NetName)
		require.Equal(t, seq.Nets[i].CC0, par.Nets[i].CC0)
		require.Equal(t, seq.Nets[i].CC1, par.Nets[i].CC1)
		require.Equal(t, seq.Nets[i].CO, par.Nets[i].CO)
	}
}

func TestAnalyzeSampling(t *testing.T) {
	src := `
module wide (input a, output y);
  wire n1, n2, n3, n4;
  BUF_X1 g1 (.A(a), .Y(n1));
  BUF_X1 g2 (.A(n1), .Y(n2));
  BUF_X1 g3 (.A(n2), .Y(n3));
  BUF_X1 g4 (.A(n3), .Y(n4));
  BUF_X1 g5 (.A(n4), .Y(y));
endmodule
`
	full := analyze(t, src, domain.AnalyzerOptions{SampleRate: 1})
	half := analyze(t, src, domain.AnalyzerOptions{SampleRate: 0.5})

	require.Len(t, full.Nets, 6)
	require.Len(t, half.Nets, 4) // a, y and every other internal net

	// Boundary nets survive sampling.
	record(t, half, "a")
	record(t, half, "y")
}

func TestAnalyzeDanglingNet(t *testing.T) {
	src := `
module top (input a, output y);
  wire floating;
  BUF_X1 g1 (.A(a), .Y(y));
endmodule
`
	mod := parse(t, domain.ParserOptions{}, src)
	c, err := domain.NewCircuit(mod)
	require.NoError(t, err)

	_, err = domain.NewAnalyzer(domain.AnalyzerOptions{}).Analyze(context.Background(), c)
	var aerr *m.AnalysisError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, "floating", aerr.Net)
}

func TestAnalyzeCancellation(t *testing.T) {
	src := `
module top (input a, output y);
  BUF_X1 g1 (.A(a), .Y(y));
endmodule
`
	mod := parse(t, domain.ParserOptions{}, src)
	c, err := domain.NewCircuit(mod)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = domain.NewAnalyzer(domain.AnalyzerOptions{}).Analyze(ctx, c)
	require.ErrorIs(t, err, context.Canceled)
}
