package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hwsec-lab/trojanforge/internal/adapter"
	"github.com/hwsec-lab/trojanforge/internal/controller"
	m "github.com/hwsec-lab/trojanforge/internal/model"
	"github.com/hwsec-lab/trojanforge/pkg"
)

// Artifact file names within a run's output directory.
const (
	FeaturesFileName = "features.json"
	RankingFileName  = "target_nets.json"
	MetadataFileName = "insertion_metadata.json"
	SummaryFileName  = "pipeline_summary.json"
	TrojanedDirName  = "trojaned_netlists"
)

// AnalyzeArgs configures the analyze stage.
type AnalyzeArgs struct {
	Netlist      m.Path
	FeaturesOut  m.Path // "" skips persistence
	Strict       bool
	Hierarchical bool
	SampleRate   float64
	Parallelism  int
}

// RankArgs configures the rank stage.
type RankArgs struct {
	FeaturesIn m.Path
	RankingOut m.Path // "" skips persistence
	TopK       int
	Model      ScoringModel // nil selects the heuristic fallback
}

// InsertArgs configures the insert stage.
type InsertArgs struct {
	Netlist      m.Path
	RankingIn    m.Path
	OutputDir    m.Path
	NumTrojans   int
	Seed         int64
	Disjoint     bool
	CounterWidth int
	Parallelism  int
	Strict       bool
	Hierarchical bool
	Now          func() time.Time
}

// RunArgs configures the full pipeline.
type RunArgs struct {
	Netlist      m.Path
	OutputDir    m.Path
	NumTrojans   int
	TopK         int // 0 derives a candidate pool from NumTrojans
	Seed         int64
	Model        ScoringModel
	Disjoint     bool
	CounterWidth int
	Parallelism  int
	Strict       bool
	Hierarchical bool
	SampleRate   float64
	Now          func() time.Time
}

// Workflow is the pipeline orchestration boundary the CLI drives. Each
// stage can run standalone against persisted artifacts, or chained by Run.
type Workflow interface {
	Analyze(ctx context.Context, args AnalyzeArgs) (*m.FeatureTable, error)
	Rank(ctx context.Context, args RankArgs) (*m.Ranking, error)
	Insert(ctx context.Context, args InsertArgs) (*m.InsertionMetadata, error)
	Run(ctx context.Context, args RunArgs) (*m.RunSummary, error)
}

type workflow struct {
	fs    adapter.NetlistFS
	store adapter.ArtifactStore
	ui    controller.UI
}

// NewWorkflow creates a Workflow with the provided dependencies.
func NewWorkflow(fs adapter.NetlistFS, store adapter.ArtifactStore, ui controller.UI) Workflow {
	return &workflow{fs: fs, store: store, ui: ui}
}

func parserOptions(strict, hierarchical bool) ParserOptions {
	opts := ParserOptions{}
	if strict {
		opts.Strictness = m.Strict
	}
	if hierarchical {
		opts.Hierarchy = m.Blackbox
	}
	return opts
}

func (w *workflow) parseNetlist(path m.Path, strict, hierarchical bool) (*m.Module, []byte, error) {
	src, err := w.fs.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read netlist: %w", err)
	}
	mod, err := NewParser(parserOptions(strict, hierarchical)).Parse(string(path), src)
	if err != nil {
		return nil, nil, err
	}
	return mod, src, nil
}

// Analyze parses the netlist, levelizes it and computes the feature table.
func (w *workflow) Analyze(ctx context.Context, args AnalyzeArgs) (*m.FeatureTable, error) {
	mod, _, err := w.parseNetlist(args.Netlist, args.Strict, args.Hierarchical)
	if err != nil {
		return nil, err
	}
	w.ui.ParseStats(mod)
	w.ui.Warnings(mod.Warnings)
	slog.Info("parsed netlist", "module", mod.Name, "gates", len(mod.Gates), "nets", len(mod.Nets))

	circuit, err := NewCircuit(mod)
	if err != nil {
		return nil, err
	}

	analyzer := NewAnalyzer(AnalyzerOptions{SampleRate: args.SampleRate, Parallelism: args.Parallelism})
	table, err := analyzer.Analyze(ctx, circuit)
	if err != nil {
		return nil, err
	}
	slog.Info("extracted features", "nets", len(table.Nets), "max_level", circuit.MaxLevel)

	if args.FeaturesOut != "" {
		if err := w.store.SaveFeatures(args.FeaturesOut, table); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// Rank loads the feature table and produces the vulnerability ranking.
func (w *workflow) Rank(ctx context.Context, args RankArgs) (*m.Ranking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := w.store.LoadFeatures(args.FeaturesIn)
	if err != nil {
		return nil, err
	}
	return w.rankTable(table, args.TopK, args.Model, args.RankingOut)
}

func (w *workflow) rankTable(table *m.FeatureTable, topK int, scoring ScoringModel, out m.Path) (*m.Ranking, error) {
	if scoring == nil {
		scoring = HeuristicModel{}
	}
	ranking, err := NewScorer(scoring).Rank(table, topK)
	if err != nil {
		return nil, err
	}
	slog.Info("ranked nets", "model", scoring.Name(), "candidates", ranking.NumNets)

	w.ui.Header("Top insertion candidates")
	w.ui.TopNets(ranking, 10)

	if out != "" {
		if err := w.store.SaveRanking(out, ranking); err != nil {
			return nil, err
		}
	}
	return ranking, nil
}

// Insert synthesizes the requested number of Trojans against a persisted
// ranking and writes one netlist copy per insertion plus the metadata
// artifact.
func (w *workflow) Insert(ctx context.Context, args InsertArgs) (*m.InsertionMetadata, error) {
	ranking, err := w.store.LoadRanking(args.RankingIn)
	if err != nil {
		return nil, err
	}
	mod, src, err := w.parseNetlist(args.Netlist, args.Strict, args.Hierarchical)
	if err != nil {
		return nil, err
	}
	return w.insert(ctx, mod, src, ranking, args)
}

func (w *workflow) insert(ctx context.Context, mod *m.Module, src []byte, ranking *m.Ranking, args InsertArgs) (*m.InsertionMetadata, error) {
	synth, err := NewSynthesizer(mod, src, ranking, SynthOptions{
		Seed:         args.Seed,
		DisjointNets: args.Disjoint,
		CounterWidth: args.CounterWidth,
		Now:          args.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := w.fs.EnsureDir(args.OutputDir); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}

	// Planning is sequential so the disjoint-nets pool shrinks in
	// insertion order; generation and writing fan out afterwards.
	specs := make([]m.TrojanSpec, 0, args.NumTrojans)
	used := make(map[string]bool)
	for id := 1; id <= args.NumTrojans; id++ {
		spec, err := synth.Plan(id, args.NumTrojans, used)
		if err != nil {
			var notFound *m.NetNotFoundError
			var insufficient *m.InsufficientNetsError
			if errors.As(err, &notFound) || errors.As(err, &insufficient) {
				slog.Warn("skipping insertion", "id", id, "error", err)
				continue
			}
			return nil, err
		}
		for _, net := range spec.TriggerNets {
			used[net] = true
		}
		used[spec.PayloadNet] = true
		specs = append(specs, spec)
	}

	spill, err := pkg.NewFileSpill[m.InsertionRecord]()
	if err != nil {
		return nil, err
	}
	defer spill.Close()

	group, gctx := errgroup.WithContext(ctx)
	limit := args.Parallelism
	if limit < 1 {
		limit = 1
	}
	group.SetLimit(limit)
	for _, spec := range specs {
		spec := spec
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, rec, err := synth.Generate(spec)
			if err != nil {
				var notFound *m.NetNotFoundError
				if errors.As(err, &notFound) {
					slog.Warn("skipping insertion", "id", spec.ID, "error", err)
					return nil
				}
				return err
			}
			out := w.fs.JoinPath(string(args.OutputDir), rec.OutputFile)
			if err := w.fs.WriteFile(out, []byte(text)); err != nil {
				return fmt.Errorf("insertion %d: %w", spec.ID, err)
			}
			slog.Debug("inserted trojan", "id", spec.ID, "trigger", spec.Trigger, "payload", spec.Payload, "file", rec.OutputFile)
			return spill.Append(rec)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var records []m.InsertionRecord
	if err := spill.Range(func(_ uint64, rec m.InsertionRecord) error {
		records = append(records, rec)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	now := args.Now
	if now == nil {
		now = time.Now
	}
	meta := &m.InsertionMetadata{
		Timestamp:        now().UTC().Format(time.RFC3339),
		OriginalNetlist:  string(args.Netlist),
		NumTrojans:       len(records),
		RequestedTrojans: args.NumTrojans,
		Insertions:       records,
	}
	metaPath := w.fs.JoinPath(string(args.OutputDir), MetadataFileName)
	if err := w.store.SaveMetadata(metaPath, meta); err != nil {
		return nil, err
	}

	w.ui.Header("Insertion results")
	w.ui.InsertionResults(meta)
	return meta, nil
}

// Run chains all stages into one reproducible pipeline and persists the
// run summary.
func (w *workflow) Run(ctx context.Context, args RunArgs) (*m.RunSummary, error) {
	if err := w.fs.EnsureDir(args.OutputDir); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	featuresPath := w.fs.JoinPath(string(args.OutputDir), FeaturesFileName)
	rankingPath := w.fs.JoinPath(string(args.OutputDir), RankingFileName)
	trojanedDir := w.fs.JoinPath(string(args.OutputDir), TrojanedDirName)

	table, err := w.Analyze(ctx, AnalyzeArgs{
		Netlist:      args.Netlist,
		FeaturesOut:  featuresPath,
		Strict:       args.Strict,
		Hierarchical: args.Hierarchical,
		SampleRate:   args.SampleRate,
		Parallelism:  args.Parallelism,
	})
	if err != nil {
		return nil, err
	}

	topK := args.TopK
	if topK == 0 {
		// Draw a candidate pool an order of magnitude wider than the
		// insertion count, bounded by what the design has.
		topK = args.NumTrojans * 10
		available := 0
		for _, rec := range table.Nets {
			if !rec.IsInput && !rec.IsOutput {
				available++
			}
		}
		if topK > available {
			topK = available
		}
	}
	ranking, err := w.rankTable(table, topK, args.Model, rankingPath)
	if err != nil {
		return nil, err
	}

	mod, src, err := w.parseNetlist(args.Netlist, args.Strict, args.Hierarchical)
	if err != nil {
		return nil, err
	}
	meta, err := w.insert(ctx, mod, src, ranking, InsertArgs{
		Netlist:      args.Netlist,
		OutputDir:    trojanedDir,
		NumTrojans:   args.NumTrojans,
		Seed:         args.Seed,
		Disjoint:     args.Disjoint,
		CounterWidth: args.CounterWidth,
		Parallelism:  args.Parallelism,
		Now:          args.Now,
	})
	if err != nil {
		return nil, err
	}

	now := args.Now
	if now == nil {
		now = time.Now
	}
	summary := &m.RunSummary{
		InputNetlist:   string(args.Netlist),
		OutputDir:      string(args.OutputDir),
		NumRequested:   args.NumTrojans,
		NumInserted:    meta.NumTrojans,
		FeaturesFile:   string(featuresPath),
		TargetNetsFile: string(rankingPath),
		TrojanedDir:    string(trojanedDir),
		MetadataFile:   string(w.fs.JoinPath(string(trojanedDir), MetadataFileName)),
		Seed:           args.Seed,
		Timestamp:      now().UTC().Format(time.RFC3339),
	}
	if err := w.store.SaveSummary(w.fs.JoinPath(string(args.OutputDir), SummaryFileName), summary); err != nil {
		return nil, err
	}
	w.ui.Printf("Inserted %d/%d trojans into %s\n", meta.NumTrojans, args.NumTrojans, args.Netlist)
	return summary, nil
}
