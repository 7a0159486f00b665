package domain

import "errors"

var (
	// ErrCycleDetected is returned when an edge would close a cycle. The graph is left unchanged.
	ErrCycleDetected = errors.New("edge would create a cycle")
	// ErrInvalidRelation is returned for relation names outside the closed set.
	ErrInvalidRelation = errors.New("invalid relation")
	// ErrGraphInconsistency signals a mismatch between the in-memory graph and storage.
	ErrGraphInconsistency = errors.New("graph inconsistent with storage")
	// ErrConcurrencyTimeout is returned when the graph lock could not be acquired in time.
	ErrConcurrencyTimeout = errors.New("timed out acquiring graph lock")
	ErrEdgeNotFound       = errors.New("edge not found")
	ErrNodeNotFound       = errors.New("node not found")
)
