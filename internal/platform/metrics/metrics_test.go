package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	registry := prometheus.NewRegistry()
	var m Metrics
	m.Register(registry)
	m.Register(registry)

	m.IncCommit()
	m.IncResolution("win")
	m.IncLedgerAppend()
	m.IncQuorumActivation("PAUSE")
	m.IncExpired(2)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestNilSafeCounters(t *testing.T) {
	var m *Metrics
	m.IncCommit()
	m.IncResolution("loss")
	m.IncExpired(1)
	m.IncParameterMismatch()
	m.IncLedgerAppend()
	m.IncLedgerAppendFailure()
	m.IncQuorumActivation("RESUME")
	m.IncVerification()

	unregistered := &Metrics{}
	unregistered.IncCommit()
	unregistered.IncVerification()
}
