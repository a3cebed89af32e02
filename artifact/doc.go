// Package artifact stores binary artifacts produced during runs, such as
// generated files or tool output blobs. Artifacts are scoped by session and
// addressed by an artifact ID. The in-memory implementation suits
// development and tests; durable backends implement the same interface.
package artifact
