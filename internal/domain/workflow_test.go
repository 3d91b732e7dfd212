package domain_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/hwsec-lab/trojanforge/internal/adapter"
	"github.com/hwsec-lab/trojanforge/internal/controller"
	domain "github.com/hwsec-lab/trojanforge/internal/domain"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

const pipelineNetlist = `
module aes_sbox (input clk, input rst_n, input a, input b, input c, output y);
  wire n1, n2, n3, n4, n5;
  NAND2_X1 g1 (.A(a), .B(b), .Y(n1));
  NOR2_X1  g2 (.A(b), .B(c), .Y(n2));
  XOR2_X1  g3 (.A(n1), .B(n2), .Y(n3));
  AND2_X1  g4 (.A(n3), .B(a), .Y(n4));
  OR2_X1   g5 (.A(n4), .B(n2), .Y(n5));
  INV_X1   g6 (.A(n5), .Y(y));
endmodule
`

func newTestWorkflow(t *testing.T) domain.Workflow {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return domain.NewWorkflow(
		adapter.NewLocalNetlistFS(),
		adapter.NewJSONArtifactStore(),
		controller.NewConsoleUI(cmd),
	)
}

func writeNetlist(t *testing.T, dir string) m.Path {
	t.Helper()
	path := filepath.Join(dir, "aes_sbox.v")
	require.NoError(t, os.WriteFile(path, []byte(pipelineNetlist), 0o644))
	return m.Path(path)
}

func TestWorkflowAnalyze(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorkflow(t)
	out := filepath.Join(dir, "features.json")

	table, err := w.Analyze(context.Background(), domain.AnalyzeArgs{
		Netlist:     writeNetlist(t, dir),
		FeaturesOut: m.Path(out),
		SampleRate:  1,
		Parallelism: 2,
	})
	require.NoError(t, err)
	require.Equal(t, "aes_sbox", table.Design)
	require.Len(t, table.Nets, 11) // 5 inputs + 1 output + 5 internal

	loaded, err := adapter.NewJSONArtifactStore().LoadFeatures(m.Path(out))
	require.NoError(t, err)
	require.Equal(t, table.Nets, loaded.Nets)
}

func TestWorkflowRankTopKTooLarge(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorkflow(t)
	featuresPath := filepath.Join(dir, "features.json")

	_, err := w.Analyze(context.Background(), domain.AnalyzeArgs{
		Netlist:     writeNetlist(t, dir),
		FeaturesOut: m.Path(featuresPath),
	})
	require.NoError(t, err)

	_, err = w.Rank(context.Background(), domain.RankArgs{
		FeaturesIn: m.Path(featuresPath),
		TopK:       10, // only 5 internal candidates exist
	})
	var ierr *m.InsufficientNetsError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, 5, ierr.Available)
}

func TestWorkflowRun(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorkflow(t)
	outDir := filepath.Join(dir, "out")
	now := func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }

	summary, err := w.Run(context.Background(), domain.RunArgs{
		Netlist:     writeNetlist(t, dir),
		OutputDir:   m.Path(outDir),
		NumTrojans:  3,
		Seed:        42,
		Parallelism: 2,
		Now:         now,
	})
	require.NoError(t, err)
	require.Equal(t, 3, summary.NumInserted)
	require.Equal(t, int64(42), summary.Seed)

	for _, name := range []string{"features.json", "target_nets.json", "pipeline_summary.json"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err, "missing artifact %s", name)
	}

	meta, err := adapter.NewJSONArtifactStore().LoadMetadata(m.Path(filepath.Join(outDir, "trojaned_netlists", "insertion_metadata.json")))
	require.NoError(t, err)
	require.Equal(t, 3, meta.NumTrojans)
	require.Equal(t, 3, meta.RequestedTrojans)
	for i, rec := range meta.Insertions {
		require.Equal(t, i+1, rec.ID, "records must be sorted by insertion id")
		content, err := os.ReadFile(filepath.Join(outDir, "trojaned_netlists", rec.OutputFile))
		require.NoError(t, err)
		require.Contains(t, string(content), "TROJAN")
		require.Contains(t, string(content), "endmodule")
	}
}

func TestWorkflowRunFiveInsertions(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorkflow(t)
	outDir := filepath.Join(dir, "out")

	summary, err := w.Run(context.Background(), domain.RunArgs{
		Netlist:     writeNetlist(t, dir),
		OutputDir:   m.Path(outDir),
		NumTrojans:  5,
		Seed:        3,
		Parallelism: 2,
		Now:         func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	require.Equal(t, 5, summary.NumInserted)

	meta, err := adapter.NewJSONArtifactStore().LoadMetadata(m.Path(filepath.Join(outDir, "trojaned_netlists", "insertion_metadata.json")))
	require.NoError(t, err)
	require.Len(t, meta.Insertions, 5)

	seen := make(map[string]bool)
	for i, rec := range meta.Insertions {
		require.Equal(t, i+1, rec.ID)
		require.False(t, seen[rec.OutputFile], "output file %s reused", rec.OutputFile)
		seen[rec.OutputFile] = true
		_, err := os.Stat(filepath.Join(outDir, "trojaned_netlists", rec.OutputFile))
		require.NoError(t, err)
	}
}

func TestWorkflowRunDeterministic(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorkflow(t)
	netlist := writeNetlist(t, dir)
	now := func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }

	run := func(out string) map[string][]byte {
		_, err := w.Run(context.Background(), domain.RunArgs{
			Netlist:     netlist,
			OutputDir:   m.Path(out),
			NumTrojans:  4,
			Seed:        7,
			Parallelism: 4,
			Now:         now,
		})
		require.NoError(t, err)

		files := make(map[string][]byte)
		entries, err := os.ReadDir(filepath.Join(out, "trojaned_netlists"))
		require.NoError(t, err)
		for _, e := range entries {
			if filepath.Ext(e.Name()) != ".v" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(out, "trojaned_netlists", e.Name()))
			require.NoError(t, err)
			files[e.Name()] = data
		}
		return files
	}

	first := run(filepath.Join(dir, "run1"))
	second := run(filepath.Join(dir, "run2"))
	require.Equal(t, first, second, "same seed must produce byte-identical netlist sets")
	require.Len(t, first, 4)
}

func TestWorkflowInsertStandalone(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorkflow(t)
	netlist := writeNetlist(t, dir)
	store := adapter.NewJSONArtifactStore()

	ranking := &m.Ranking{NumNets: 4, TargetNets: []m.RankedNet{
		{Name: "n3", Score: 0.9},
		{Name: "n4", Score: 0.8},
		{Name: "n1", Score: 0.7},
		{Name: "n2", Score: 0.6},
	}}
	rankingPath := filepath.Join(dir, "target_nets.json")
	require.NoError(t, store.SaveRanking(m.Path(rankingPath), ranking))

	outDir := filepath.Join(dir, "trojaned")
	meta, err := w.Insert(context.Background(), domain.InsertArgs{
		Netlist:    netlist,
		RankingIn:  m.Path(rankingPath),
		OutputDir:  m.Path(outDir),
		NumTrojans: 2,
		Seed:       1,
		Now:        func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	require.Len(t, meta.Insertions, 2)
	require.Equal(t, "n3", meta.Insertions[0].PayloadNet)
}
