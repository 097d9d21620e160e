package dbsp

import (
	"cmp"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func pairs(ps ...kv) *Collection[kv, Count] {
	c := NewCollection[kv, Count]()
	for _, p := range ps {
		c.Insert(p, 1)
	}
	return c
}

var _ = Describe("Arrangement", func() {
	var trace *Trace[string, int, Count]

	BeforeEach(func() {
		trace = NewTrace[string, int, Count](cmp.Compare[string], cmp.Compare[int])
	})

	It("should look up values in order", func() {
		arr := trace.Update(pairs(kv{"b", 3}, kv{"a", 2}, kv{"b", 1}))
		Expect(arr.Len()).To(Equal(3))
		Expect(arr.Lookup("b")).To(Equal([]Weighted[int, Count]{{1, 1}, {3, 1}}))
		Expect(arr.Lookup("c")).To(BeEmpty())
	})

	It("should combine and drop diffs", func() {
		trace.Update(pairs(kv{"a", 1}))
		arr := trace.Update(FromEntries(Weighted[kv, Count]{kv{"a", 1}, -1}, Weighted[kv, Count]{kv{"a", 2}, 5}))
		Expect(arr.Lookup("a")).To(Equal([]Weighted[int, Count]{{2, 5}}))
	})

	It("should keep old versions readable and unchanged", func() {
		v1 := trace.Update(pairs(kv{"a", 1})).Acquire()
		v2 := trace.Update(pairs(kv{"a", 2}))

		Expect(v1.Lookup("a")).To(Equal([]Weighted[int, Count]{{1, 1}}))
		Expect(v2.Lookup("a")).To(Equal([]Weighted[int, Count]{{1, 1}, {2, 1}}))
		Expect(v2.Version()).To(Equal(v1.Version() + 1))

		// the trace dropped its reference, the reader still holds one
		Expect(v1.Refs()).To(Equal(int64(1)))
		v1.Release()
		Expect(v1.Refs()).To(Equal(int64(0)))
		Expect(v1.Len()).To(Equal(0))
		Expect(v2.Len()).To(Equal(2))
	})

	It("should not change the current version on an empty batch", func() {
		v1 := trace.Update(pairs(kv{"a", 1}))
		Expect(trace.Update(NewCollection[kv, Count]())).To(BeIdenticalTo(v1))
	})

	It("should seek forward by key", func() {
		arr := trace.Update(pairs(kv{"a", 1}, kv{"c", 1}, kv{"c", 2}, kv{"e", 1}))

		cur := arr.Cursor()
		Expect(cur.Valid()).To(BeTrue())
		Expect(cur.Key()).To(Equal("a"))

		Expect(cur.Seek("b")).To(BeTrue())
		Expect(cur.Key()).To(Equal("c"))
		Expect(cur.Values()).To(HaveLen(2))

		// backwards seeks do not move
		Expect(cur.Seek("a")).To(BeTrue())
		Expect(cur.Key()).To(Equal("c"))

		Expect(cur.Next()).To(BeTrue())
		Expect(cur.Key()).To(Equal("e"))
		Expect(cur.Next()).To(BeFalse())
		Expect(cur.Valid()).To(BeFalse())
	})

	It("should report an invalid cursor on an empty arrangement", func() {
		Expect(trace.Current().Cursor().Valid()).To(BeFalse())
	})

	It("should support concurrent readers of a pinned version", func() {
		batch := NewCollection[kv, Count]()
		for i := 0; i < 100; i++ {
			batch.Insert(kv{"k", i}, 1)
		}
		arr := trace.Update(batch).Acquire()
		defer arr.Release()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(arr.Lookup("k")).To(HaveLen(100))
			}()
		}
		// the writer keeps publishing new versions meanwhile
		trace.Update(pairs(kv{"k", 1000}))
		wg.Wait()
		Expect(arr.Lookup("k")).To(HaveLen(100))
	})

	It("should materialize a collection", func() {
		arr := trace.Update(pairs(kv{"a", 1}, kv{"b", 2}))
		Expect(arr.Collection().Map()).To(Equal(map[kv]Count{{"a", 1}: 1, {"b", 2}: 1}))
	})
})
