package pagepool

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfPagesError is the error returned from allocation paths when no free block large enough to
// satisfy the request exists at any order
var OutOfPagesError error = errors.New("no free block large enough to satisfy the request")

// PageCountError is the error returned when a requested page count falls outside the range a
// single block can represent, or when a deallocation is attempted with a page count other than one
var PageCountError error = errors.New("page count is outside the supported range")

// AlignmentError is the error returned when an address or page offset is not aligned the way the
// operation requires
var AlignmentError error = errors.New("address is not aligned to a page boundary")

// PoolIDError is the error returned from registry methods when the provided pool id does not name
// a populated pool
var PoolIDError error = errors.New("pool id does not name a populated pool")
