// Package audit records who changed what in CDL Core.
//
// Handlers hand entries to a Writer, which buffers them on a channel and
// persists them from a single goroutine. A full buffer drops the entry with a
// warning so that auditing never slows a request. Admins read the trail back
// through Repository.List.
package audit
