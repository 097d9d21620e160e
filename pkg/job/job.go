// Package job runs a convergent computation over a sequence of epochs of input updates read from
// a YAML job file.
package job

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"sigs.k8s.io/yaml"
)

// Algorithm names.
const (
	Reachability = "reachability"
	ShortestPath = "shortest-path"
	WidestPath   = "widest-path"
	Connectivity = "connectivity"
	Intern       = "intern"
	Rows         = "rows"
)

// Algorithms lists the known algorithms.
var Algorithms = []string{Reachability, ShortestPath, WidestPath, Connectivity, Intern, Rows}

// Interning realizations.
const (
	FullState    = "full-state"
	DiffRelative = "diff-relative"
)

// Job is a job file.
type Job struct {
	// Name is the name of the computation, used in logs and metrics.
	Name string `json:"name"`
	// Algorithm selects the computation.
	Algorithm string `json:"algorithm"`
	// Realization selects the interning realization, diff-relative by default.
	Realization string `json:"realization,omitempty"`
	// Arity is the number of fields of the records of a rows job.
	Arity int `json:"arity,omitempty"`
	// InternValues dictionary-encodes the attributes of a rows job.
	InternValues bool `json:"internValues,omitempty"`
	// Epochs is the input, one batch of updates per epoch.
	Epochs []Epoch `json:"epochs"`
}

// Epoch is the input of an epoch. Only the fields relevant for the algorithm are used.
type Epoch struct {
	// Edges are added to the graph. Connectivity jobs take each edge in both directions.
	Edges []Edge `json:"edges,omitempty"`
	// Seeds are the source nodes added in the epoch.
	Seeds []string `json:"seeds,omitempty"`
	// Elements are the updates of an interning job.
	Elements []Element `json:"elements,omitempty"`
	// Records are the updates of a rows job.
	Records []RecordUpdate `json:"records,omitempty"`
}

// Edge is an edge with an optional length or width.
type Edge struct {
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	Value uint64 `json:"value,omitempty"`
}

// Element is an element insertion, or a removal if Retract is set.
type Element struct {
	Value   string `json:"value"`
	Retract bool   `json:"retract,omitempty"`
}

// RecordUpdate is a record insertion, or a removal if Retract is set.
type RecordUpdate struct {
	Fields  []string `json:"fields"`
	Retract bool     `json:"retract,omitempty"`
}

// Parse parses and validates a job.
func Parse(data []byte) (*Job, error) {
	job := &Job{}
	if err := yaml.UnmarshalStrict(data, job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// ReadFile reads a job file.
func ReadFile(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file %q: %w", path, err)
	}
	job, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid job file %q: %w", path, err)
	}
	return job, nil
}

// Validate checks a job for consistency.
func (j *Job) Validate() error {
	if j.Name == "" {
		return errors.New("missing job name")
	}
	if !slices.Contains(Algorithms, j.Algorithm) {
		return fmt.Errorf("unknown algorithm %q, expected one of %v", j.Algorithm, Algorithms)
	}

	switch j.Algorithm {
	case Intern:
		if j.Realization != "" && j.Realization != FullState && j.Realization != DiffRelative {
			return fmt.Errorf("unknown realization %q", j.Realization)
		}
	case WidestPath:
		// a zero width is the identity of the widest-path diff and would be dropped
		for i, e := range j.Epochs {
			for _, edge := range e.Edges {
				if edge.Value == 0 {
					return fmt.Errorf("epoch %d: edge %s->%s needs a positive width", i, edge.Src, edge.Dst)
				}
			}
		}
	case Rows:
		if j.Arity <= 0 {
			return errors.New("rows job needs a positive arity")
		}
		for i, e := range j.Epochs {
			for _, r := range e.Records {
				if len(r.Fields) != j.Arity {
					return fmt.Errorf("epoch %d: record %v has arity %d, expected %d", i,
						r.Fields, len(r.Fields), j.Arity)
				}
			}
		}
	}

	return nil
}
