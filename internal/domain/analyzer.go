package domain

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hwsec-lab/trojanforge/internal/domain/cells"
	"github.com/hwsec-lab/trojanforge/internal/model"
)

// AnalyzerOptions tunes the testability analyzer.
type AnalyzerOptions struct {
	// SampleRate in (0,1] emits feature records for only that fraction of
	// internal nets. SCOAP itself always runs over the whole graph; the
	// sampling bounds the feature table on very large designs.
	SampleRate float64
	// Parallelism bounds concurrent per-net work inside one topological
	// level. Levels are strict barriers. <=1 means sequential.
	Parallelism int
}

// Analyzer computes per-net SCOAP controllability/observability and
// structural features over a levelized circuit.
type Analyzer struct {
	opts AnalyzerOptions
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	if opts.SampleRate <= 0 || opts.SampleRate > 1 {
		opts.SampleRate = 1
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Analyzer{opts: opts}
}

// Analyze runs the two SCOAP passes and assembles the feature table.
func (a *Analyzer) Analyze(ctx context.Context, c *Circuit) (*model.FeatureTable, error) {
	if err := a.validate(c); err != nil {
		return nil, err
	}

	cc, err := a.controllabilityPass(ctx, c)
	if err != nil {
		return nil, err
	}
	co, err := a.observabilityPass(ctx, c, cc)
	if err != nil {
		return nil, err
	}

	return a.assemble(c, cc, co), nil
}

// validate rejects structural inconsistencies before any propagation:
// driverless nets that are not primary inputs, and gates without rules.
func (a *Analyzer) validate(c *Circuit) error {
	for _, name := range c.Nets() {
		net := c.Module.Nets[name]
		if net.Driver == "" && !net.IsInput {
			return &model.AnalysisError{Net: name, Msg: "no driver and not a primary input"}
		}
	}
	for _, gn := range sortedGateNames(c.Module) {
		g := c.Module.Gates[gn]
		if !cells.HasRules(g.Type) {
			return &model.UnknownCellError{Gate: g.Name, Cell: g.CellName}
		}
	}
	return nil
}

// controllabilityPass processes nets in ascending level order. All nets of
// one level are independent and computed concurrently; the next level does
// not start until the current one completes.
func (a *Analyzer) controllabilityPass(ctx context.Context, c *Circuit) ([]cells.Controllability, error) {
	cc := make([]cells.Controllability, len(c.Module.NetOrder))

	for level := 0; level <= c.MaxLevel; level++ {
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(a.opts.Parallelism)
		for _, name := range c.NetsAtLevel(level) {
			name := name
			group.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				net := c.Module.Nets[name]
				driver := c.Driver(name)
				if driver == nil || driver.Type.IsRegister() || driver.Type == model.CellBlackbox {
					cc[net.DeclOrder] = cells.Base()
					return nil
				}
				ins := make([]cells.Controllability, len(driver.Inputs))
				for i, in := range driver.Inputs {
					ins[i] = cc[c.Module.Nets[in].DeclOrder]
				}
				out, ok := cells.ControllabilityOf(driver.Type, ins)
				if !ok {
					return &model.UnknownCellError{Gate: driver.Name, Cell: driver.CellName}
				}
				cc[net.DeclOrder] = out
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	}
	return cc, nil
}

// observabilityPass processes nets in descending level order. Primary
// outputs are directly observable (CO 0); register and blackbox outputs
// act as observation sinks with a fixed sequential penalty, which keeps
// the pass acyclic across sequential feedback.
func (a *Analyzer) observabilityPass(ctx context.Context, c *Circuit, cc []cells.Controllability) ([]float64, error) {
	co := make([]float64, len(c.Module.NetOrder))
	assigned := make([]bool, len(c.Module.NetOrder))

	for _, name := range c.Nets() {
		net := c.Module.Nets[name]
		switch {
		case net.IsOutput:
			co[net.DeclOrder] = 0
			assigned[net.DeclOrder] = true
		case c.IsRegisterOutput(name), isBlackboxOutput(c, name):
			co[net.DeclOrder] = cells.SequentialPenalty
			assigned[net.DeclOrder] = true
		}
	}

	for level := c.MaxLevel; level >= 0; level-- {
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(a.opts.Parallelism)
		for _, name := range c.NetsAtLevel(level) {
			name := name
			group.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				net := c.Module.Nets[name]
				if assigned[net.DeclOrder] {
					return nil
				}
				best := cells.MaxCost
				for _, reader := range c.Readers(name) {
					ins := make([]cells.Controllability, len(reader.Inputs))
					for i, in := range reader.Inputs {
						ins[i] = cc[c.Module.Nets[in].DeclOrder]
					}
					outCO := co[c.Module.Nets[reader.Output].DeclOrder]
					for pin, in := range reader.Inputs {
						if in != name {
							continue
						}
						cost, ok := cells.ObservabilityOf(reader.Type, ins, outCO, pin)
						if !ok {
							return &model.UnknownCellError{Gate: reader.Name, Cell: reader.CellName}
						}
						if cost < best {
							best = cost
						}
					}
				}
				co[net.DeclOrder] = best
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	}
	return co, nil
}

func isBlackboxOutput(c *Circuit, name string) bool {
	driver := c.Driver(name)
	return driver != nil && driver.Type == model.CellBlackbox
}

// assemble builds feature records in declaration order, applying the
// sampling stride to internal nets. Boundary nets are always included so
// the scorer can exclude them explicitly.
func (a *Analyzer) assemble(c *Circuit, cc []cells.Controllability, co []float64) *model.FeatureTable {
	table := &model.FeatureTable{
		Design:      c.Module.Name,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	stride := 1
	if a.opts.SampleRate < 1 {
		stride = int(1 / a.opts.SampleRate)
		if stride < 1 {
			stride = 1
		}
	}

	internalSeen := 0
	for _, name := range c.Nets() {
		net := c.Module.Nets[name]
		boundary := net.IsInput || net.IsOutput
		if !boundary {
			internalSeen++
			if (internalSeen-1)%stride != 0 {
				continue
			}
		}

		fanIn := 0
		if driver := c.Driver(name); driver != nil {
			fanIn = len(driver.Inputs)
		}
		rec := model.FeatureRecord{
			NetName:    name,
			FanIn:      fanIn,
			FanOut:     len(c.Readers(name)),
			LogicDepth: c.Level(name),
			CC0:        cc[net.DeclOrder].CC0,
			CC1:        cc[net.DeclOrder].CC1,
			CO:         co[net.DeclOrder],
			IsInput:    net.IsInput,
			IsOutput:   net.IsOutput,
		}
		rec.TestabilityScore = testability(rec.CC0, rec.CC1, rec.CO)
		table.Nets = append(table.Nets, rec)
	}
	return table
}

// testability is the documented normalized combination: each raw SCOAP
// value capped at 100 and scaled to [0,1], then (cc0+cc1)/2 + co. Higher
// means harder to test.
func testability(cc0, cc1, co float64) float64 {
	norm := func(v float64) float64 {
		if v > 100 {
			v = 100
		}
		return v / 100
	}
	return (norm(cc0)+norm(cc1))/2 + norm(co)
}
