package entity

import "errors"

var (
	// ErrNotFound is returned by Store.Update and by World operations when
	// a referenced id does not resolve against the current store.
	ErrNotFound = errors.New("entity not found")

	// ErrInvariant is returned (and, at the engine layer, triggers a turn
	// abort) when an operation would leave the store in a state that
	// violates one of the invariants in spec section 3.
	ErrInvariant = errors.New("entity invariant violated")
)
