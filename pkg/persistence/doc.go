// Package persistence provides file-backed storage for client state.
//
// This package handles the JSON serialization of state that must
// survive process restarts: the offline operation queue and the
// credential store. The stores are safe for concurrent use within a
// single process; they do not coordinate across processes.
package persistence
