// Package repository is the only data-access path for money entities. Every
// fetch takes the caller's tenant id and every query filters on it, so a
// cross-tenant read is structurally impossible rather than a convention.
package repository

import "errors"

var (
	// ErrNotFound covers both a genuinely missing row and a row that exists
	// under another tenant; callers cannot tell the difference.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict means the optimistic version check failed because a
	// concurrent writer got there first. Retriable.
	ErrVersionConflict = errors.New("version conflict, try again")

	// ErrAlreadyProcessed means a guarded status transition lost its race to
	// another caller. Exactly one winner is guaranteed.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrPoolFrozen means the contribution pool has been finalized and no
	// longer accepts contributions.
	ErrPoolFrozen = errors.New("pool is frozen")
)
