// Package slots provides the arena+index storage behind boundary handles.
//
// Handles are 1-based indices into a slice of entries; 0 is reserved and
// always invalid. Released slots go to a free list and are reused, so every
// entry carries a generation counter that is bumped on release. A Ref pairs
// the index with the generation observed at acquisition time.
//
// Each entry tracks in-flight uses. Close of a slot marks it closing so new
// acquisitions fail, and the slot is freed only once in-flight uses reach
// zero.
package slots
