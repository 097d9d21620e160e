package job

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-logr/logr"

	"github.com/l7mp/dflow/pkg/dbsp"
	"github.com/l7mp/dflow/pkg/graph"
	"github.com/l7mp/dflow/pkg/intern"
	"github.com/l7mp/dflow/pkg/rows"
	"github.com/l7mp/dflow/pkg/visualize"
)

// Output is an entry of the table a job maintains: a node and its value, an element and its
// identifier, or a cell of an attribute.
type Output struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func compareOutputs(a, b Output) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return cmp.Compare(a.Value, b.Value)
}

// Change is a change of the output table.
type Change struct {
	Output
	Diff int64 `json:"diff"`
}

// Result is the output of an epoch.
type Result struct {
	Epoch   uint64   `json:"epoch"`
	Rounds  uint64   `json:"rounds"`
	Changes []Change `json:"changes"`
}

// algorithm is a computation adapted to the job input and output.
type algorithm interface {
	process(ctx context.Context, epoch Epoch) (*dbsp.Collection[Output, dbsp.Count], error)
	rounds() uint64
}

// Option configures a runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option { return func(r *Runner) { r.log = log } }

// WithObserver sets the observer of the iterations.
func WithObserver(obs dbsp.Observer) Option { return func(r *Runner) { r.observer = obs } }

// Runner runs a job. The output of every epoch is recorded in an update log, so the output table
// can be queried as of any epoch that has not been compacted.
type Runner struct {
	job      *Job
	algo     algorithm
	output   *dbsp.Log[Output, dbsp.Count]
	epoch    uint64
	log      logr.Logger
	observer dbsp.Observer
}

// NewRunner creates a runner for a job.
func NewRunner(job *Job, opts ...Option) (*Runner, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{job: job, output: dbsp.NewLog[Output, dbsp.Count](compareOutputs), log: logr.Discard()}
	for _, opt := range opts {
		opt(r)
	}

	gopts := []graph.Option{graph.WithLogger(r.log), graph.WithObserver(r.observer)}
	switch job.Algorithm {
	case Reachability:
		r.algo = &propagation[dbsp.Present, dbsp.Present]{
			p:    graph.NewReachability[string](gopts...).Propagation,
			edge: func(Edge) dbsp.Present { return true },
			seed: func() dbsp.Present { return true },
		}
	case ShortestPath:
		r.algo = &propagation[dbsp.MinSum, dbsp.MinSum]{
			p:    graph.NewShortestPath[string](gopts...).Propagation,
			edge: func(e Edge) dbsp.MinSum { return dbsp.NewMinSum(e.Value) },
			seed: func() dbsp.MinSum { return dbsp.NewMinSum(0) },
		}
	case WidestPath:
		r.algo = &propagation[dbsp.MaxMin, dbsp.MaxMin]{
			p:    graph.NewWidestPath[string](gopts...).Propagation,
			edge: func(e Edge) dbsp.MaxMin { return dbsp.NewMaxMin(e.Value) },
			seed: func() dbsp.MaxMin { return dbsp.NewMaxMin(math.MaxUint64) },
		}
	case Connectivity:
		r.algo = &propagation[dbsp.Present, dbsp.MinLabel]{
			p:         graph.NewConnectivity[string](NodeLabel, gopts...).Propagation,
			edge:      func(Edge) dbsp.Present { return true },
			symmetric: true,
		}
	case Intern:
		iopts := []intern.Option{intern.WithLogger(r.log), intern.WithObserver(r.observer)}
		if job.Realization == FullState {
			r.algo = &interning{in: intern.NewFullState[string](job.Name, iopts...)}
		} else {
			r.algo = &interning{in: intern.NewDiffRelative[string](job.Name, iopts...)}
		}
	case Rows:
		ropts := []rows.Option{rows.WithLogger(r.log), rows.WithObserver(r.observer)}
		if job.InternValues {
			ropts = append(ropts, rows.WithInternedValues())
		}
		d, err := rows.NewDecomposer(job.Name, job.Arity, ropts...)
		if err != nil {
			return nil, err
		}
		r.algo = &decomposition{d: d}
	}

	return r, nil
}

// Step processes the next epoch of the job. It returns false when there are no more epochs.
func (r *Runner) Step(ctx context.Context) (*Result, bool, error) {
	if int(r.epoch) >= len(r.job.Epochs) {
		return nil, false, nil
	}

	out, err := r.algo.process(ctx, r.job.Epochs[r.epoch])
	if err != nil {
		return nil, false, fmt.Errorf("job %s: epoch %d: %w", r.job.Name, r.epoch, err)
	}

	t := dbsp.Time{Epoch: r.epoch}
	r.output.AppendCollection(t, out)

	result := &Result{Epoch: r.epoch, Rounds: r.algo.rounds(), Changes: []Change{}}
	for _, w := range out.Entries(compareOutputs) {
		result.Changes = append(result.Changes, Change{Output: w.Value, Diff: int64(w.Diff)})
	}

	r.log.V(2).Info("epoch done", "job", r.job.Name, "epoch", r.epoch, "rounds", result.Rounds,
		"changes", len(result.Changes))
	r.epoch++

	return result, true, nil
}

// Run processes all remaining epochs.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	results := []Result{}
	for {
		result, ok, err := r.Step(ctx)
		if err != nil {
			return results, err
		}
		if !ok {
			return results, nil
		}
		results = append(results, *result)
	}
}

// Table returns the output table as of an epoch.
func (r *Runner) Table(epoch uint64) map[Output]int64 {
	table := map[Output]int64{}
	r.output.At(dbsp.Time{Epoch: epoch}).Range(func(o Output, diff dbsp.Count) bool {
		table[o] = int64(diff)
		return true
	})
	return table
}

// Changes returns the net change of the output table from the end of epoch from to the end of
// epoch to.
func (r *Runner) Changes(from, to uint64) map[Output]int64 {
	changes := map[Output]int64{}
	r.output.Between(dbsp.Time{Epoch: from}, dbsp.Time{Epoch: to}).Range(func(o Output, diff dbsp.Count) bool {
		changes[o] = int64(diff)
		return true
	})
	return changes
}

// Compact forgets the distinction between the epochs before the given one.
func (r *Runner) Compact(epoch uint64) { r.output.Compact(dbsp.Time{Epoch: epoch}) }

// Visualize returns the visualization graph of the current state of a graph job.
func (r *Runner) Visualize() (*visualize.Graph, error) {
	v, ok := r.algo.(interface{ visualize() *visualize.Graph })
	if !ok {
		return nil, fmt.Errorf("job %s: cannot visualize a %s job", r.job.Name, r.job.Algorithm)
	}
	return v.visualize(), nil
}

// NodeLabel assigns connectivity labels: numeric node names are their own label, other names are
// hashed. The largest uint64 is reserved for unlabeled nodes, so that name is hashed too.
func NodeLabel(node string) uint64 {
	if n, err := strconv.ParseUint(node, 10, 64); err == nil && n != dbsp.NoLabel.Label {
		return n
	}
	return xxhash.Sum64String(node)
}

type propagation[E dbsp.Monoid[E], D dbsp.Monoid[D]] struct {
	p         *graph.Propagation[string, E, D]
	edge      func(Edge) E
	seed      func() D
	symmetric bool
}

func (a *propagation[E, D]) process(ctx context.Context, epoch Epoch) (*dbsp.Collection[Output, dbsp.Count], error) {
	edges := dbsp.NewCollection[graph.Edge[string], E]()
	for _, e := range epoch.Edges {
		edges.Insert(graph.Edge[string]{Src: e.Src, Dst: e.Dst}, a.edge(e))
		if a.symmetric {
			edges.Insert(graph.Edge[string]{Src: e.Dst, Dst: e.Src}, a.edge(e))
		}
	}
	seeds := dbsp.NewCollection[string, D]()
	if a.seed != nil {
		for _, s := range epoch.Seeds {
			seeds.Insert(s, a.seed())
		}
	}

	before := a.p.Values().Clone()
	changed, err := a.p.Process(ctx, edges, seeds)
	if err != nil {
		return nil, err
	}

	// a changed node replaces its old value in the table
	result := dbsp.NewCollection[Output, dbsp.Count]()
	changed.Range(func(n string, _ D) bool {
		if before.Contains(n) {
			result.Insert(Output{Key: n, Value: fmt.Sprint(before.Get(n))}, -1)
		}
		result.Insert(Output{Key: n, Value: fmt.Sprint(a.p.Value(n))}, 1)
		return true
	})
	return result, nil
}

func (a *propagation[E, D]) rounds() uint64 { return a.p.Rounds() }

func (a *propagation[E, D]) visualize() *visualize.Graph { return visualize.FromPropagation(a.p) }

type interning struct {
	in intern.Interner[string]
}

func (a *interning) process(ctx context.Context, epoch Epoch) (*dbsp.Collection[Output, dbsp.Count], error) {
	elems := dbsp.NewCollection[string, dbsp.Count]()
	for _, e := range epoch.Elements {
		elems.Insert(e.Value, diff(e.Retract))
	}

	changes, err := a.in.Process(ctx, elems)
	if err != nil {
		return nil, err
	}
	return dbsp.NewProjection[intern.Assignment[string], Output, dbsp.Count](func(as intern.Assignment[string]) Output {
		return Output{Key: as.Elem, Value: strconv.FormatUint(as.ID, 10)}
	}).Process(changes), nil
}

func (a *interning) rounds() uint64 { return a.in.Rounds() }

type decomposition struct {
	d *rows.Decomposer
}

func (a *decomposition) process(ctx context.Context, epoch Epoch) (*dbsp.Collection[Output, dbsp.Count], error) {
	records := dbsp.NewCollection[rows.Record, dbsp.Count]()
	for _, r := range epoch.Records {
		records.Insert(rows.NewRecord(r.Fields...), diff(r.Retract))
	}

	deltas, err := a.d.Process(ctx, records)
	if err != nil {
		return nil, err
	}

	result := dbsp.NewCollection[Output, dbsp.Count]()
	for i, delta := range deltas {
		delta.Range(func(c rows.Cell, d dbsp.Count) bool {
			result.Insert(Output{Key: fmt.Sprintf("%d/%d", c.Row, i), Value: c.Value}, d)
			return true
		})
	}
	return result, nil
}

func (a *decomposition) rounds() uint64 { return a.d.Rounds() }

func diff(retract bool) dbsp.Count {
	if retract {
		return -1
	}
	return 1
}
