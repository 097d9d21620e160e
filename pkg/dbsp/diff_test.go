package dbsp

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func checkMonoidLaws[D interface {
	Monoid[D]
	comparable
}](samples []D) {
	zero := Zero[D]()
	Expect(zero.IsZero()).To(BeTrue())
	for _, a := range samples {
		Expect(a.Plus(zero)).To(Equal(a), fmt.Sprintf("right identity for %v", a))
		Expect(zero.Plus(a)).To(Equal(a), fmt.Sprintf("left identity for %v", a))
		for _, b := range samples {
			Expect(a.Plus(b)).To(Equal(b.Plus(a)), fmt.Sprintf("commutativity for %v, %v", a, b))
			for _, c := range samples {
				Expect(a.Plus(b).Plus(c)).To(Equal(a.Plus(b.Plus(c))),
					fmt.Sprintf("associativity for %v, %v, %v", a, b, c))
			}
		}
	}
}

var _ = Describe("Diff algebra", func() {
	It("Count should be an Abelian group", func() {
		samples := []Count{-7, -1, 0, 1, 3, 42}
		checkMonoidLaws(samples)
		for _, x := range samples {
			Expect(x.Plus(x.Negate()).IsZero()).To(BeTrue())
		}
	})

	It("Present should be an idempotent monoid", func() {
		samples := []Present{false, true}
		checkMonoidLaws(samples)
		Expect(Present(true).Plus(true)).To(Equal(Present(true)))
	})

	It("MinSum should be a monoid with +infinity as zero", func() {
		samples := []MinSum{NewMinSum(0), NewMinSum(5), NewMinSum(8), Infinity}
		checkMonoidLaws(samples)
		Expect(NewMinSum(5).Plus(NewMinSum(3))).To(Equal(NewMinSum(3)))
		Expect(NewMinSum(5).Extend(3)).To(Equal(NewMinSum(8)))
		Expect(Infinity.Extend(3).IsZero()).To(BeTrue())
		Expect(NewMinSum(^uint64(0) - 1).Extend(10).IsZero()).To(BeTrue())
	})

	It("MaxMin should be a monoid with zero capacity as zero", func() {
		samples := []MaxMin{NewMaxMin(0), NewMaxMin(2), NewMaxMin(4), NewMaxMin(10)}
		checkMonoidLaws(samples)
		Expect(NewMaxMin(10).Extend(4)).To(Equal(NewMaxMin(4)))
		Expect(NewMaxMin(2).Plus(NewMaxMin(4))).To(Equal(NewMaxMin(4)))
	})

	It("MinLabel should be a monoid with the sentinel as zero", func() {
		samples := []MinLabel{NewMinLabel(0), NewMinLabel(1), NewMinLabel(3), NoLabel}
		checkMonoidLaws(samples)
		Expect(NewMinLabel(3).Plus(NewMinLabel(1))).To(Equal(NewMinLabel(1)))
	})

	It("should sum slices", func() {
		Expect(Sum[Count]()).To(Equal(Count(0)))
		Expect(Sum(Count(1), Count(2), Count(-4))).To(Equal(Count(-1)))
		Expect(Sum(NewMinSum(7), NewMinSum(2))).To(Equal(NewMinSum(2)))
	})
})
