package memory

import "github.com/Workiva/go-datastructures/augmentedtree"

// Interval is a half-open range [Lower, Upper) of FCRAM offsets.
type Interval struct {
	Lower uint32
	Upper uint32
}

// Size returns the number of bytes the interval covers.
func (i Interval) Size() uint32 { return i.Upper - i.Lower }

// freeInterval is one entry of a region's free set. The tree works on
// inclusive bounds, so [lower, upper) is stored as [lower, upper-1];
// intervals are never empty.
type freeInterval struct {
	lower uint32
	upper uint32
	id    uint64
}

func (f *freeInterval) LowAtDimension(uint64) int64  { return int64(f.lower) }
func (f *freeInterval) HighAtDimension(uint64) int64 { return int64(f.upper) - 1 }

func (f *freeInterval) OverlapsAtDimension(iv augmentedtree.Interval, d uint64) bool {
	return f.LowAtDimension(d) <= iv.HighAtDimension(d) &&
		f.HighAtDimension(d) >= iv.LowAtDimension(d)
}

func (f *freeInterval) ID() uint64 { return f.id }

// probe is a query-only interval; it is never stored in a tree.
type probe struct {
	low  int64
	high int64
}

func (p *probe) LowAtDimension(uint64) int64  { return p.low }
func (p *probe) HighAtDimension(uint64) int64 { return p.high }

func (p *probe) OverlapsAtDimension(iv augmentedtree.Interval, d uint64) bool {
	return p.low <= iv.HighAtDimension(d) && p.high >= iv.LowAtDimension(d)
}

func (p *probe) ID() uint64 { return 0 }
