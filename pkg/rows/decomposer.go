package rows

import (
	"cmp"
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/l7mp/dflow/pkg/dbsp"
	"github.com/l7mp/dflow/pkg/intern"
)

// Option configures a decomposer.
type Option func(*options)

type options struct {
	interned bool
	hasher   intern.Hasher
	log      logr.Logger
	observer dbsp.Observer
}

// WithInternedValues dictionary-encodes the values of every attribute.
func WithInternedValues() Option { return func(o *options) { o.interned = true } }

// WithHasher sets the hasher used to assign row identifiers and value codes.
func WithHasher(h intern.Hasher) Option { return func(o *options) { o.hasher = h } }

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option { return func(o *options) { o.log = log } }

// WithObserver sets the observer of the interning iterations.
func WithObserver(obs dbsp.Observer) Option { return func(o *options) { o.observer = obs } }

// attrCell is a cell tagged with its attribute.
type attrCell struct {
	attr int
	cell Cell
}

type attribute struct {
	cells *dbsp.IntegratorOp[Cell, dbsp.Count]
	trace *dbsp.Trace[uint64, string, dbsp.Count]
	dict  intern.Interner[string]
}

// Decomposer maintains the columnar decomposition of a collection of records of fixed arity.
type Decomposer struct {
	name  string
	arity int
	rows  intern.Interner[Record]
	attrs []*attribute
	log   logr.Logger
}

// NewDecomposer creates a decomposer for records with arity fields.
func NewDecomposer(name string, arity int, opts ...Option) (*Decomposer, error) {
	if arity <= 0 {
		return nil, dbsp.NewOpError("rows:"+name, fmt.Sprintf("invalid arity %d", arity), nil)
	}

	o := options{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	iopts := []intern.Option{intern.WithLogger(o.log), intern.WithObserver(o.observer)}
	if o.hasher != nil {
		iopts = append(iopts, intern.WithHasher(o.hasher))
	}

	d := &Decomposer{
		name:  name,
		arity: arity,
		rows:  intern.NewDiffRelative[Record](name+"/rows", iopts...),
		attrs: make([]*attribute, arity),
		log:   o.log,
	}
	for i := range d.attrs {
		a := &attribute{
			cells: dbsp.NewIntegrator[Cell, dbsp.Count](),
			trace: dbsp.NewTrace[uint64, string, dbsp.Count](cmp.Compare[uint64], cmp.Compare[string]),
		}
		if o.interned {
			a.dict = intern.NewDiffRelative[string](fmt.Sprintf("%s/attr-%d", name, i), iopts...)
		}
		d.attrs[i] = a
	}

	return d, nil
}

// Arity returns the number of attributes.
func (d *Decomposer) Arity() int { return d.arity }

// Process folds a change of the record collection into the decomposition and returns the change
// of each attribute collection.
func (d *Decomposer) Process(ctx context.Context, records *dbsp.Collection[Record, dbsp.Count]) ([]*dbsp.Collection[Cell, dbsp.Count], error) {
	if records == nil {
		records = dbsp.NewCollection[Record, dbsp.Count]()
	}
	fields := make(map[Record][]string, records.Len())
	var err error
	records.Range(func(r Record, _ dbsp.Count) bool {
		var fs []string
		fs, err = r.Fields()
		if err != nil {
			err = dbsp.NewOpError("rows:"+d.name, "malformed record", err)
			return false
		}
		if len(fs) != d.arity {
			err = dbsp.NewOpError("rows:"+d.name,
				fmt.Sprintf("record %s has arity %d, expected %d", r, len(fs), d.arity), nil)
			return false
		}
		fields[r] = fs
		return true
	})
	if err != nil {
		return nil, err
	}

	rowDelta, err := d.rows.Process(ctx, records)
	if err != nil {
		return nil, err
	}

	cells := dbsp.NewUnwind[intern.Assignment[Record], attrCell, dbsp.Count](func(a intern.Assignment[Record]) []attrCell {
		fs, ok := fields[a.Elem]
		if !ok {
			// moved by a collision
			fs, _ = a.Elem.Fields()
		}
		result := make([]attrCell, len(fs))
		for i, v := range fs {
			result[i] = attrCell{attr: i, cell: Cell{Row: a.ID, Value: v}}
		}
		return result
	}).Process(rowDelta)

	deltas := make([]*dbsp.Collection[Cell, dbsp.Count], d.arity)
	for i := range deltas {
		deltas[i] = dbsp.NewCollection[Cell, dbsp.Count]()
	}
	cells.Range(func(c attrCell, diff dbsp.Count) bool {
		deltas[c.attr].Insert(c.cell, diff)
		return true
	})

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range d.attrs {
		g.Go(func() error {
			delta := deltas[i]
			a.cells.Update(delta)
			a.trace.Update(dbsp.KeyBy(delta, func(c Cell) (uint64, string) { return c.Row, c.Value }))
			if a.dict == nil {
				return nil
			}
			values := dbsp.NewProjection[Cell, string, dbsp.Count](func(c Cell) string { return c.Value }).Process(delta)
			if _, err := a.dict.Process(gctx, values); err != nil {
				return fmt.Errorf("attribute %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.log.V(2).Info("epoch processed", "name", d.name, "records", records.Len(),
		"row-changes", rowDelta.Len())

	return deltas, nil
}

// Rounds returns the number of rounds the row interning took in the last epoch.
func (d *Decomposer) Rounds() uint64 { return d.rows.Rounds() }

// RowID returns the row identifier of a record.
func (d *Decomposer) RowID(r Record) (uint64, bool) { return d.rows.Lookup(r) }

// Attribute returns the collection of attribute i and its arrangement by row, pinned for the
// caller. Release the arrangement when done.
func (d *Decomposer) Attribute(i int) (*dbsp.Collection[Cell, dbsp.Count], *dbsp.Arrangement[uint64, string, dbsp.Count], error) {
	if i < 0 || i >= d.arity {
		return nil, nil, dbsp.NewOpError("rows:"+d.name, fmt.Sprintf("no attribute %d", i), nil)
	}
	a := d.attrs[i]
	return a.cells.State().Clone(), a.trace.Acquire(), nil
}

// Code returns the dictionary code of a value of attribute i. It reports false if values are not
// interned.
func (d *Decomposer) Code(i int, value string) (uint64, bool) {
	if i < 0 || i >= d.arity || d.attrs[i].dict == nil {
		return 0, false
	}
	return d.attrs[i].dict.Lookup(value)
}
