// Package memory provides long-lived conversational memory stores. A memory
// store keeps two kinds of data per session: a key/value scratchpad shared
// across runs, and an append-only list of stored snippets that can be
// searched. The in-memory implementation is meant for development and tests;
// production deployments would back the same interface with a vector or
// document database.
package memory
