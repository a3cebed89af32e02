// Package session houses concrete implementations of core.SessionStore.
// The interface itself and the Session struct live in core to centralize
// domain contracts; keeping only implementations here prevents higher level
// packages from depending on concrete storage.
//
// Additional backends (Redis, Postgres, ...) can be added without changing
// calling code. Only the wiring layer decides which implementation to
// instantiate.
package session
