package rows

import (
	"cmp"
	"fmt"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// Filter selects the values of an attribute.
type Filter func(value string) bool

// Reassemble joins the given attributes on the row identifier and returns the records formed by
// the values of the attributes, in the given order. Rows missing any of the attributes, or whose
// value fails the filter of an attribute, are dropped. Diffs of the values are multiplied.
//
// The attribute arrangements are shared, not copied. A filtered attribute is scanned once into a
// new arrangement holding only the passing cells, in row order.
func (d *Decomposer) Reassemble(columns []int, filters map[int]Filter) (*dbsp.Collection[Record, dbsp.Count], error) {
	result := dbsp.NewCollection[Record, dbsp.Count]()
	if len(columns) == 0 {
		return result, nil
	}

	cursors := make([]*dbsp.Cursor[uint64, string, dbsp.Count], len(columns))
	for j, i := range columns {
		if i < 0 || i >= d.arity {
			return nil, dbsp.NewOpError("rows:"+d.name, fmt.Sprintf("no attribute %d", i), nil)
		}
		arr := d.attrs[i].trace.Acquire()
		defer arr.Release()

		if filter, ok := filters[i]; ok && filter != nil {
			narrowed := narrow(arr, filter)
			defer narrowed.Release()
			arr = narrowed
		}
		cursors[j] = arr.Cursor()
	}

	fields := make([]string, len(cursors))
	for leapfrog(cursors) {
		emit(result, cursors, 0, fields, 1)
		if !cursors[0].Next() {
			break
		}
	}

	d.log.V(4).Info("reassembled", "name", d.name, "columns", fmt.Sprint(columns), "records", result.Len())
	return result, nil
}

// narrow returns a new arrangement with the entries of arr whose value passes the filter.
func narrow(arr *dbsp.Arrangement[uint64, string, dbsp.Count], filter Filter) *dbsp.Arrangement[uint64, string, dbsp.Count] {
	selected := dbsp.NewCollection[dbsp.Pair[uint64, string], dbsp.Count]()
	arr.Range(func(row uint64, value string, diff dbsp.Count) bool {
		if filter(value) {
			selected.Insert(dbsp.Pair[uint64, string]{Key: row, Val: value}, diff)
		}
		return true
	})
	empty := dbsp.NewArrangement[uint64, string, dbsp.Count](cmp.Compare[uint64], cmp.Compare[string])
	defer empty.Release()
	return empty.Apply(selected)
}

// leapfrog advances the cursors to the smallest row present in all of them. It returns false when
// any cursor is exhausted.
func leapfrog(cursors []*dbsp.Cursor[uint64, string, dbsp.Count]) bool {
	for {
		var high uint64
		for _, c := range cursors {
			if !c.Valid() {
				return false
			}
			high = max(high, c.Key())
		}

		aligned := true
		for _, c := range cursors {
			if c.Key() < high {
				aligned = false
				if !c.Seek(high) {
					return false
				}
			}
		}
		if aligned {
			return true
		}
	}
}

// emit adds the cross product of the values of the current row to result.
func emit(result *dbsp.Collection[Record, dbsp.Count], cursors []*dbsp.Cursor[uint64, string, dbsp.Count], j int, fields []string, diff dbsp.Count) {
	if j == len(cursors) {
		result.Insert(NewRecord(fields...), diff)
		return
	}
	for _, v := range cursors[j].Values() {
		fields[j] = v.Value
		emit(result, cursors, j+1, fields, diff*v.Diff)
	}
}
