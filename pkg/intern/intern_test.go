package intern

import (
	"context"
	"errors"
	"math/rand"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// byLength collides every pair of elements of the same length.
func byLength(round uint64, data []byte) uint64 { return round*1000 + uint64(len(data)) }

// threeBuckets allows only three winners per round.
func threeBuckets(round uint64, data []byte) uint64 { return round*3 + uint64(len(data))%3 }

func insert(elems ...string) *dbsp.Collection[string, dbsp.Count] {
	c := dbsp.NewCollection[string, dbsp.Count]()
	for _, e := range elems {
		c.Insert(e, 1)
	}
	return c
}

func remove(elems ...string) *dbsp.Collection[string, dbsp.Count] {
	return dbsp.Negate(insert(elems...))
}

func ids(in Interner[string]) map[string]uint64 {
	result := map[string]uint64{}
	in.Assignments().Range(func(a Assignment[string], diff dbsp.Count) bool {
		Expect(diff).To(Equal(dbsp.Count(1)))
		result[a.Elem] = a.ID
		return true
	})
	return result
}

func assignments(pairs ...any) map[Assignment[string]]dbsp.Count {
	result := map[Assignment[string]]dbsp.Count{}
	for i := 0; i < len(pairs); i += 3 {
		result[Assignment[string]{Elem: pairs[i].(string), ID: uint64(pairs[i+1].(int))}] = dbsp.Count(pairs[i+2].(int))
	}
	return result
}

// reference assigns identifiers round by round: earlier winners keep their buckets and within a
// round the smaller element wins.
func reference(elems []string, h Hasher) map[string]uint64 {
	pending := slices.Clone(elems)
	slices.Sort(pending)
	taken := map[uint64]bool{}
	result := map[string]uint64{}
	for round := uint64(0); len(pending) > 0; round++ {
		var next []string
		for _, e := range pending {
			b := h(round, []byte(e))
			if taken[b] {
				next = append(next, e)
				continue
			}
			taken[b] = true
			result[e] = b
		}
		pending = next
	}
	return result
}

var realizations = []struct {
	name   string
	create func(opts ...Option) Interner[string]
}{
	{"full-state", func(opts ...Option) Interner[string] { return NewFullState[string]("test", opts...) }},
	{"diff-relative", func(opts ...Option) Interner[string] { return NewDiffRelative[string]("test", opts...) }},
}

var _ = Describe("Interning", func() {
	ctx := context.Background()

	for _, r := range realizations {
		create := r.create
		Context(r.name, func() {
			It("should assign the round-0 bucket when there are no collisions", func() {
				in := create()
				out, err := in.Process(ctx, insert("apple", "banana", "cherry"))
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Len()).To(Equal(3))
				for _, e := range []string{"apple", "banana", "cherry"} {
					id, ok := in.Lookup(e)
					Expect(ok).To(BeTrue())
					Expect(id).To(Equal(XXHash(0, []byte(e))))
				}
				Expect(in.Rounds()).To(Equal(uint64(0)))
				_, ok := in.Lookup("durian")
				Expect(ok).To(BeFalse())
			})

			It("should be stable", func() {
				in := create(WithHasher(byLength))
				_, err := in.Process(ctx, insert("a", "b", "c", "bb", "dd"))
				Expect(err).NotTo(HaveOccurred())
				before := ids(in)

				out, err := in.Process(ctx, dbsp.NewCollection[string, dbsp.Count]())
				Expect(err).NotTo(HaveOccurred())
				Expect(out.IsZero()).To(BeTrue())
				Expect(ids(in)).To(Equal(before))

				other := create(WithHasher(byLength))
				for _, e := range []string{"dd", "c", "bb", "b", "a"} {
					_, err := other.Process(ctx, insert(e))
					Expect(err).NotTo(HaveOccurred())
				}
				Expect(ids(other)).To(Equal(before))
			})

			It("should confine a collision to its cascade", func() {
				in := create(WithHasher(byLength))
				_, err := in.Process(ctx, insert("a", "bb", "ccc"))
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(in)).To(Equal(map[string]uint64{"a": 1, "bb": 2, "ccc": 3}))

				out, err := in.Process(ctx, insert("b"))
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Map()).To(Equal(assignments("b", 1001, 1)))

				out, err = in.Process(ctx, insert("0"))
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Map()).To(Equal(assignments(
					"0", 1, 1,
					"a", 1, -1, "a", 1001, 1,
					"b", 1001, -1, "b", 2001, 1,
				)))
				Expect(in.Rounds()).To(Equal(uint64(2)))

				out, err = in.Process(ctx, remove("0"))
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Map()).To(Equal(assignments(
					"0", 1, -1,
					"a", 1001, -1, "a", 1, 1,
					"b", 2001, -1, "b", 1001, 1,
				)))
				Expect(ids(in)).To(Equal(map[string]uint64{"a": 1, "b": 1001, "bb": 2, "ccc": 3}))
			})

			It("should remove an isolated winner without side effects", func() {
				in := create(WithHasher(byLength))
				_, err := in.Process(ctx, insert("a", "b", "bb", "ccc"))
				Expect(err).NotTo(HaveOccurred())

				out, err := in.Process(ctx, remove("ccc"))
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Map()).To(Equal(assignments("ccc", 3, -1)))
				Expect(ids(in)).To(Equal(map[string]uint64{"a": 1, "b": 1001, "bb": 2}))
			})

			It("should treat elements as a set", func() {
				in := create()
				_, err := in.Process(ctx, insert("x"))
				Expect(err).NotTo(HaveOccurred())
				out, err := in.Process(ctx, insert("x"))
				Expect(err).NotTo(HaveOccurred())
				Expect(out.IsZero()).To(BeTrue())

				_, err = in.Process(ctx, remove("x"))
				Expect(err).NotTo(HaveOccurred())
				_, ok := in.Lookup("x")
				Expect(ok).To(BeTrue())

				_, err = in.Process(ctx, remove("x"))
				Expect(err).NotTo(HaveOccurred())
				_, ok = in.Lookup("x")
				Expect(ok).To(BeFalse())
			})

			It("should stop on a canceled context", func() {
				in := create()
				canceled, cancel := context.WithCancel(ctx)
				cancel()
				_, err := in.Process(canceled, insert("x"))
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
				Expect(dbsp.IsOpError(err)).To(BeTrue())
			})

			It("should match the round-by-round assignment under random updates", func() {
				rnd := rand.New(rand.NewSource(7))
				vocabulary := []string{}
				for _, s := range []string{"a", "b"} {
					vocabulary = append(vocabulary, s, s+"a", s+"b", s+"ab", s+"ba", s+"bba", s+"aab")
				}

				in := create(WithHasher(threeBuckets))
				present := map[string]bool{}
				for epoch := 0; epoch < 20; epoch++ {
					delta := dbsp.NewCollection[string, dbsp.Count]()
					for i := 0; i < 3; i++ {
						e := vocabulary[rnd.Intn(len(vocabulary))]
						if present[e] {
							delta.Insert(e, -1)
						} else {
							delta.Insert(e, 1)
						}
						present[e] = !present[e]
					}
					_, err := in.Process(ctx, delta)
					Expect(err).NotTo(HaveOccurred())

					var elems []string
					for e, ok := range present {
						if ok {
							elems = append(elems, e)
						}
					}
					Expect(ids(in)).To(Equal(reference(elems, threeBuckets)), "epoch %d", epoch)
				}
			})
		})
	}

	It("should produce identical assignments in both realizations", func() {
		full := NewFullState[string]("full", WithHasher(byLength))
		diff := NewDiffRelative[string]("diff", WithHasher(byLength))
		epochs := []*dbsp.Collection[string, dbsp.Count]{
			insert("a", "b", "c", "dd"),
			insert("ee", "0"),
			remove("a", "dd"),
			insert("a", "ff", "1"),
		}
		for _, e := range epochs {
			fo, err := full.Process(ctx, e)
			Expect(err).NotTo(HaveOccurred())
			do, err := diff.Process(ctx, e)
			Expect(err).NotTo(HaveOccurred())
			Expect(do.Map()).To(Equal(fo.Map()))
			Expect(ids(diff)).To(Equal(ids(full)))
		}
	})

	It("should keep promotions as pairs of corrections", func() {
		in := NewDiffRelative[string]("pairs", WithHasher(byLength))
		_, err := in.Process(ctx, insert("a", "b"))
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Corrections().Map()).To(Equal(map[Correction[string]]dbsp.Count{
			{Position: Position[string]{Round: 0, Elem: "b"}, Retract: true}: -1,
			{Position: Position[string]{Round: 1, Elem: "b"}}:                1,
		}))

		_, err = in.Process(ctx, remove("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Corrections().IsZero()).To(BeTrue())
		id, ok := in.Lookup("b")
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(uint64(1)))
	})

	It("should keep arrangement versions readable", func() {
		in := NewDiffRelative[string]("versions")
		_, err := in.Process(ctx, insert("x"))
		Expect(err).NotTo(HaveOccurred())
		old := in.Arrangement()
		defer old.Release()

		_, err = in.Process(ctx, insert("y"))
		Expect(err).NotTo(HaveOccurred())
		Expect(old.Len()).To(Equal(1))
		Expect(in.Assignments().Len()).To(Equal(2))
	})
})
