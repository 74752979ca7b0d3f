package types

type TenantId string
type Hash string

// ConnectionStatus is the lifecycle state of a source-to-destination pairing.
// Transitions are owned by the repair executor; see repair package.
type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "ACTIVE"
	ConnectionStatusHealing ConnectionStatus = "HEALING"
	ConnectionStatusFailed  ConnectionStatus = "FAILED"
	ConnectionStatusRetired ConnectionStatus = "RETIRED"
)

func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusActive, ConnectionStatusHealing, ConnectionStatusFailed, ConnectionStatusRetired:
		return true
	}
	return false
}

// DriftStatus is the lifecycle state of a detected drift event.
// A resolved event (repaired, auto_repaired or rejected) is immutable.
type DriftStatus string

const (
	DriftStatusPending          DriftStatus = "pending"
	DriftStatusAwaitingApproval DriftStatus = "awaiting_approval"
	DriftStatusAutoRepaired     DriftStatus = "auto_repaired"
	DriftStatusRepaired         DriftStatus = "repaired"
	DriftStatusRejected         DriftStatus = "rejected"
)

func (s DriftStatus) IsResolved() bool {
	switch s {
	case DriftStatusAutoRepaired, DriftStatusRepaired, DriftStatusRejected:
		return true
	}
	return false
}

// DriftChangeType classifies what changed between two schema snapshots.
type DriftChangeType string

const (
	DriftChangeFieldAdded   DriftChangeType = "field_added"
	DriftChangeFieldRemoved DriftChangeType = "field_removed"
	DriftChangeFieldRenamed DriftChangeType = "field_renamed"
	DriftChangeFieldRetyped DriftChangeType = "field_retyped"
	DriftChangeMixed        DriftChangeType = "mixed"
)
