package governance

import "time"

// NodeStatus is a protocol node's live status.
type NodeStatus string

const (
	// NodeRunning means the subsystem accepts work.
	NodeRunning NodeStatus = "RUNNING"
	// NodePaused means the subsystem is administratively halted.
	NodePaused NodeStatus = "PAUSED"
)

// Well-known operational node names. The registry lazily creates these on
// first read so deploys that add nodes need no migration step.
const (
	NodeNameRandomizer = "randomizer"
	NodeNameLedger     = "ledger"
	NodeNameSettlement = "settlement"
)

// WellKnownNodes lists the node names bootstrapped at startup.
var WellKnownNodes = []string{NodeNameRandomizer, NodeNameLedger, NodeNameSettlement}

// Node is one named operational subsystem's live status. Nodes are created
// lazily, mutated only through quorum action application, and never deleted.
type Node struct {
	// Name is the unique node name.
	Name string `json:"name"`
	// Status is RUNNING or PAUSED.
	Status NodeStatus `json:"status"`
	// Params holds operational parameters adjusted via PARAM_CHANGE actions.
	Params map[string]string `json:"params"`
	// ChangedAt, ChangedBy and Reason describe the last status change.
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by"`
	Reason    string    `json:"reason"`
	// Pending is the in-flight quorum action, if any.
	Pending *PendingAction `json:"pending,omitempty"`
	// Version is the optimistic-concurrency counter; every stored mutation
	// increments it and writers compare-and-set against it.
	Version uint64 `json:"version"`
}

// NewBootstrapNode returns the self-healing initial state for a node name.
func NewBootstrapNode(name string, now time.Time) Node {
	return Node{
		Name:      name,
		Status:    NodeRunning,
		Params:    map[string]string{},
		ChangedAt: now,
		ChangedBy: "system",
		Reason:    "bootstrap",
	}
}
