// Package storage defines the durable persistence boundary: saving and
// loading the two snapshot blobs the central manager owns, SystemState and
// PerformanceStats (spec.md §4.12, §6). This repo's scope stops at
// crash-safe local snapshotting — multi-node replication and a real
// database backend are external (spec.md §1).
//
// Conceptually grounded on the teacher's deleted
// internal/eventsourcing/core/snapshot.go (SnapshotManager's atomic-swap
// persistence intent); there are no event-sourced aggregates in this
// domain, so the CQRS/aggregate machinery itself is not carried forward —
// only the "write to a temp file, then atomic rename" discipline survives.
package storage

import (
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Store persists and restores the manager's periodic snapshots.
type Store interface {
	SaveSystemState(state model.SystemState) error
	LoadSystemState() (model.SystemState, error)

	SavePerformanceStats(stats model.PerformanceStats) error
	LoadPerformanceStats() (model.PerformanceStats, error)
}
