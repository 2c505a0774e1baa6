// Package experiment manages quantum-optics experiment submissions for CDL Core.
//
// An Experiment is a user-submitted run request. It owns one ComputeSettings
// snapshot (cluster state, qubit computing with its circuit angles, and the
// encoded qubit measurements) that is written atomically with it and never
// changes afterwards. Its Status moves through a small state machine:
//
//	INITIAL ──▶ IN_QUEUE ──▶ RUNNING ──▶ DONE
//	               │  ▲          │
//	               ▼  │          ▼
//	              FAILED ◀───────┘
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────┐
//	│                       Experiment Service                        │
//	│                                                                 │
//	│  ┌────────────────┐   ┌────────────────┐   ┌────────────────┐   │
//	│  │    Service     │   │   Repository   │   │   Validation   │   │
//	│  │  (service.go)  │──▶│(repository.go) │   │(validation.go) │   │
//	│  │                │   │                │   │                │   │
//	│  │ • ownership    │   │ • aggregate tx │   │ • ranges       │   │
//	│  │ • transitions  │   │ • queue order  │   │ • closed enums │   │
//	│  │ • events       │   │ • result nulls │   │ • decimals     │   │
//	│  └────────────────┘   └────────────────┘   └────────────────┘   │
//	└────────────────────────────────────────────────────────────────┘
//
// # Access
//
// The caller's auth.Identity is an explicit argument to every Service method.
// Staff see and manage every experiment; other users only their own, and an
// experiment owned by someone else is reported exactly like a missing one.
// Only staff may patch. Staff and admins may peek the queue.
//
// # Queue
//
// The queue is the set of IN_QUEUE experiments ordered by creation time, with
// the insertion sequence breaking ties. PeekQueue returns the head without
// changing it; a worker advances the status with Patch.
package experiment
