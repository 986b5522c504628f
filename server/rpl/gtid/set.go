package gtid

import (
	"sort"
	"sync"

	jerrors "github.com/juju/errors"

	"github.com/zhukovaskychina/gtid-ledger/util"
)

// setShardCount buckets a Set's per-SID interval lists across
// independently-locked shards, keyed by util.HashCode of the SID's
// raw bytes, so a busy ledger with many distinct sources doesn't
// serialize every AddInterval behind one mutex.
const setShardCount = 16

type setShard struct {
	mu    sync.RWMutex
	bySID map[SID][]Interval
}

// Set is a per-SID ordered collection of pairwise-disjoint intervals,
// held in canonical form: sorted by gno_start, with no two consecutive
// (or overlapping) intervals left unmerged. It is a pure value layer:
// it performs no I/O and holds no table-level locks.
type Set struct {
	shards [setShardCount]*setShard
}

// NewSet returns an empty identifier set.
func NewSet() *Set {
	s := &Set{}
	for i := range s.shards {
		s.shards[i] = &setShard{bySID: make(map[SID][]Interval)}
	}
	return s
}

func (s *Set) shardFor(sid SID) *setShard {
	h := util.HashCode(sid[:])
	return s.shards[h%uint64(len(s.shards))]
}

// Add inserts the single identifier (sid, gno) as a degenerate interval.
func (s *Set) Add(sid SID, gno GNO) error {
	return s.AddInterval(sid, gno, gno)
}

// AddInterval inserts [start, end] for sid, merging with any
// overlapping or consecutive interval already held for that sid.
func (s *Set) AddInterval(sid SID, start, end GNO) error {
	iv := Interval{SID: sid, Start: start, End: end}
	if !iv.Valid() {
		return jerrors.Annotatef(ErrMalformedInterval, "interval %d-%d for sid %s", start, end, sid)
	}
	shard := s.shardFor(sid)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.bySID[sid] = mergeInterval(shard.bySID[sid], iv)
	return nil
}

// AddText parses "<sid>:<start>-<end>" and adds the resulting
// interval. It fails with ErrMalformedInterval (or ErrMalformedSid)
// on any deviation from that form.
func (s *Set) AddText(rowText string) error {
	sid, start, end, err := DecodeRowText(rowText)
	if err != nil {
		return jerrors.Trace(err)
	}
	return s.AddInterval(sid, start, end)
}

func mergeInterval(list []Interval, iv Interval) []Interval {
	list = append(list, iv)
	sort.Slice(list, func(i, j int) bool { return list[i].Start < list[j].Start })
	merged := make([]Interval, 0, len(list))
	for _, cur := range list {
		if n := len(merged); n > 0 && cur.Start <= merged[n-1].End+1 {
			if cur.End > merged[n-1].End {
				merged[n-1].End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// IntervalIter is a finite, single-pass sequence over a Set's
// intervals, snapshotted at the moment Intervals() was called. It
// cannot be rewound: obtain a new one from Intervals() to iterate again.
type IntervalIter struct {
	items []Interval
	pos   int
}

// Next returns the next interval, or ok=false once the sequence is exhausted.
func (it *IntervalIter) Next() (Interval, bool) {
	if it.pos >= len(it.items) {
		return Interval{}, false
	}
	v := it.items[it.pos]
	it.pos++
	return v, true
}

// Intervals returns a finite sequence over every interval in the set,
// sorted by SID byte order, then gno_start. It is not lazy: every
// interval is copied into the iterator when Intervals is called.
func (s *Set) Intervals() *IntervalIter {
	var all []Interval
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, list := range shard.bySID {
			all = append(all, list...)
		}
		shard.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].SID != all[j].SID {
			return all[i].SID.Less(all[j].SID)
		}
		return all[i].Start < all[j].Start
	})
	return &IntervalIter{items: all}
}

// Count returns the number of intervals currently held.
func (s *Set) Count() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, list := range shard.bySID {
			n += len(list)
		}
		shard.mu.RUnlock()
	}
	return n
}

// Equal reports whether two sets represent the same union of
// identifiers, regardless of how that union is split across rows.
func (s *Set) Equal(other *Set) bool {
	a, b := s.Intervals(), other.Intervals()
	for {
		av, aok := a.Next()
		bv, bok := b.Next()
		if aok != bok {
			return false
		}
		if !aok {
			return true
		}
		if av != bv {
			return false
		}
	}
}
