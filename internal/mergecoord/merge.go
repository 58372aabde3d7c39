// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package mergecoord folds partial aggregates and join entries into one
// final, canonically ordered aggregate. The fold is associative and
// commutative, so worker completion order cannot change the result.
package mergecoord

import (
	"fmt"
	"sort"

	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/joinstore"
)

// KeyConflictError indicates a serialized key that does not parse back into
// a composite key. That only happens when key derivation is buggy or the
// store was written by incompatible configuration, so it is always
// run-fatal and never silently resolved.
type KeyConflictError struct {
	KeyString string
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("merge key conflict: %q is not a valid composite key", e.KeyString)
}

// Final is the merged, order-independent result. Keys iterates in canonical
// order: country, platform, entity id, month, metric name.
type Final struct {
	Keys []aggregate.Key
	Accs map[aggregate.Key]*aggregate.Accumulator
}

// Get returns the accumulator for key, or nil.
func (f *Final) Get(key aggregate.Key) *aggregate.Accumulator {
	return f.Accs[key]
}

// Len returns the number of distinct keys.
func (f *Final) Len() int {
	return len(f.Keys)
}

// Coordinator accumulates partials and join entries, then finalizes once all
// workers for the phase have reported. It is not safe for concurrent use;
// the engine serializes result collection before merging.
type Coordinator struct {
	accs map[aggregate.Key]*aggregate.Accumulator
}

// New creates an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{
		accs: make(map[aggregate.Key]*aggregate.Accumulator),
	}
}

// AddPartial folds one chunk's partial into the running merge.
func (c *Coordinator) AddPartial(p *aggregate.Partial) {
	for key, acc := range p.Accs {
		existing, ok := c.accs[key]
		if !ok {
			merged := &aggregate.Accumulator{}
			merged.Merge(acc)
			c.accs[key] = merged
			continue
		}
		existing.Merge(acc)
	}
}

// AddEntry folds one durable join entry into the running merge.
func (c *Coordinator) AddEntry(entry joinstore.Entry) error {
	key, ok := aggregate.ParseKey(entry.KeyString)
	if !ok {
		return &KeyConflictError{KeyString: entry.KeyString}
	}

	acc := aggregate.NewAccumulatorFromParts(entry.Sum, entry.Count, entry.Min, entry.Max)
	existing, ok := c.accs[key]
	if !ok {
		c.accs[key] = acc
		return nil
	}
	existing.Merge(acc)
	return nil
}

// AddStore folds every committed entry of the join store into the merge.
func (c *Coordinator) AddStore(it *joinstore.Iterator) error {
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return fmt.Errorf("read join entry: %w", err)
		}
		if !ok {
			return nil
		}
		if err := c.AddEntry(entry); err != nil {
			return err
		}
	}
}

// Finalize sorts the merged keys canonically and returns the final
// aggregate. The coordinator must not be reused afterwards.
func (c *Coordinator) Finalize() *Final {
	final := &Final{
		Keys: make([]aggregate.Key, 0, len(c.accs)),
		Accs: c.accs,
	}
	for key := range c.accs {
		final.Keys = append(final.Keys, key)
	}
	sort.Slice(final.Keys, func(i, j int) bool {
		return final.Keys[i].Less(final.Keys[j])
	})
	c.accs = nil
	return final
}

// Merge is the one-shot convenience used when all partials are already in
// hand: fold everything, finalize, done.
func Merge(partials []*aggregate.Partial) *Final {
	c := New()
	for _, p := range partials {
		c.AddPartial(p)
	}
	return c.Finalize()
}
