/*
Package taskheap implements the in-memory store of waiting tasks that worker
claims draw from.

Tasks sit in a flat backing array in insertion order. Claiming or removing a
task zeroes its slot in place instead of shifting the tail, so the array
accumulates tombstones as it drains. The heap counts the tombstones left by
claims and squeezes them out with a compaction pass once they cross a
threshold (or on demand via RunCompaction). Between compactions a
minValidPosition watermark lets scans skip the drained head of the array.
When an insert finds the array full it grows geometrically, 25% at a time by
default.

Task type names are interned to small integer ids the first time they are
seen, so entries and capacity arithmetic work on ints rather than strings.
The name "any" is reserved: in a claim's capacity map it caps the claim as a
whole instead of one type.

A claim (TakeTasks) walks the live entries once and hands them to a chooser
that buckets candidates by the claimer's group preference order. Preferred
groups are served first, unlisted groups share whatever budget remains,
excluded groups are never served. Per-type budgets and the "any" budget are
charged as candidates are accepted, and the claim stops at its max.

The heap guards its state with a single RWMutex. Scans take the read side,
every mutation takes the write side. The group mapper given at construction
runs outside the lock on inserts and under it in RecomputeGroups.
*/
package taskheap
