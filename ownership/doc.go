// Package ownership guards resources that cross the native boundary.
//
// Every mapped type falls in one Class:
//
//	ByValue      copied bit for bit; nothing to release
//	BorrowedRef  borrow handles and raw addresses; the caller guarantees the
//	             referent outlives the call
//	Owned        own handles; exactly one side releases the resource
//
// An Owned value moves across the boundary only through HandOff, which
// consumes it: the release function moves into the returned Transfer and
// the original Owned keeps nothing it could release. The receiving side
// adopts the Transfer into a Table and later releases it by handle. A
// resource coming back is taken out of the Table and turned into a fresh
// Owned by Receive.
//
// Lend creates a Ref for the duration of one call. While any Ref is out the
// owner can neither release nor hand off the resource.
package ownership
