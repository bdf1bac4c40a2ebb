// ovirt-imageio
// Copyright (C) 2017 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation; either version 2 of the
// License, or (at your option) any later version.

package measure

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestMergeEmpty(t *testing.T) {
	got := Merge(nil)
	if len(got) != 0 {
		t.Errorf("Merge(nil) = %v, want empty", got)
	}
}

func TestMergeDropsZeroLength(t *testing.T) {
	got := Merge([]Range{{Start: 10, End: 10}})
	if len(got) != 0 {
		t.Errorf("Merge(zero-length) = %v, want empty", got)
	}
}

func TestMergeDisjoint(t *testing.T) {
	in := []Range{{0, 10}, {20, 30}}
	got := Merge(in)
	want := []Range{{0, 10}, {20, 30}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge(%v) = %v, want %v", in, got, want)
	}
}

func TestMergeOverlapping(t *testing.T) {
	in := []Range{{0, 10}, {5, 15}}
	got := Merge(in)
	want := []Range{{0, 15}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge(%v) = %v, want %v", in, got, want)
	}
}

func TestMergeTouching(t *testing.T) {
	in := []Range{{0, 10}, {10, 20}}
	got := Merge(in)
	want := []Range{{0, 20}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge(%v) = %v, want %v", in, got, want)
	}
}

func TestMergeUnsorted(t *testing.T) {
	in := []Range{{20, 30}, {0, 10}, {5, 25}}
	got := Merge(in)
	want := []Range{{0, 30}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge(%v) = %v, want %v", in, got, want)
	}
}

func TestListSumIgnoresReReads(t *testing.T) {
	l := NewList()
	l.Add(Range{0, 12})
	l.Add(Range{0, 12})
	if l.Sum() != 12 {
		t.Errorf("Sum() = %d, want 12", l.Sum())
	}
}

// union computes the number of distinct bytes covered by a set of ranges
// using a naive byte-set, to check the merge invariant against Merge's
// result for small random inputs.
func union(rs []Range) uint64 {
	set := map[uint64]struct{}{}
	for _, r := range rs {
		for i := r.Start; i < r.End; i++ {
			set[i] = struct{}{}
		}
	}
	return uint64(len(set))
}

func isSortedDisjointNonContiguous(rs []Range) bool {
	for i := 1; i < len(rs); i++ {
		if rs[i-1].End >= rs[i].Start {
			return false
		}
	}
	return true
}

func TestMergeProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := rnd.Intn(12)
		var in []Range
		for i := 0; i < n; i++ {
			start := uint64(rnd.Intn(100))
			length := uint64(rnd.Intn(20))
			in = append(in, Range{start, start + length})
		}

		merged := Merge(in)

		if !isSortedDisjointNonContiguous(merged) {
			t.Fatalf("merge(%v) = %v is not disjoint/non-contiguous", in, merged)
		}

		var sum uint64
		for _, r := range merged {
			sum += r.Len()
		}
		if want := union(in); sum != want {
			t.Fatalf("merge(%v) sum = %d, want %d (union)", in, sum, want)
		}
	}
}
