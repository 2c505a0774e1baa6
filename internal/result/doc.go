// Package result records the outcomes of experiment runs.
//
// Results are ingested by the data-acquisition system, which authenticates
// as an admin; every Service method requires auth.Identity.IsAdmin. A result
// owns one ExperimentData aggregate (per-detector countrates plus a free-form
// coincidence map) that is written in the same transaction as the result.
//
// A result references the experiment it measured. Deleting the experiment
// nulls that reference instead of removing the result. An experiment may
// collect several results; the latest is the one with the newest start time,
// with insertion order breaking ties.
package result
