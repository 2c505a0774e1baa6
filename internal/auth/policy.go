package auth

// Permission represents a named capability beyond owning an experiment.
type Permission string

// Permission constants.
const (
	PermExperimentReadAll Permission = "experiment:read:all"
	PermExperimentPatch   Permission = "experiment:patch"
	PermExperimentDelete  Permission = "experiment:delete:all"
	PermQueueView         Permission = "queue:view"
	PermResultManage      Permission = "result:manage"
	PermAuditView         Permission = "audit:view"
)

var staffPermissions = []Permission{
	PermExperimentReadAll,
	PermExperimentPatch,
	PermExperimentDelete,
	PermQueueView,
}

var adminPermissions = []Permission{
	PermQueueView,
	PermResultManage,
	PermAuditView,
}

// Has reports whether the identity holds perm through its staff or admin flag.
// Plain users hold no permissions; ownership is checked separately.
func (id Identity) Has(perm Permission) bool {
	if id.IsStaff && contains(staffPermissions, perm) {
		return true
	}
	return id.IsAdmin && contains(adminPermissions, perm)
}

// CanAccessExperiment reports whether id may read or delete an experiment owned by ownerID.
func (id Identity) CanAccessExperiment(ownerID string) bool {
	return id.IsStaff || (id.ID != "" && id.ID == ownerID)
}

// CanPatchExperiment reports whether id may change stored experiments.
// Ownership does not grant this.
func (id Identity) CanPatchExperiment() bool {
	return id.Has(PermExperimentPatch)
}

// CanViewQueue reports whether id may peek the global queue.
func (id Identity) CanViewQueue() bool {
	return id.Has(PermQueueView)
}

// CanManageResults reports whether id may record, list and delete results.
func (id Identity) CanManageResults() bool {
	return id.Has(PermResultManage)
}

func contains(perms []Permission, perm Permission) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}
