// Package gateway declares the outbound boundary contracts of the control
// plane. The implementations behind these interfaces (on-chain settlement,
// live dashboards) live outside this repository.
package gateway

import (
	"context"
	"log"
)

// Settlement requests real-value transfer after a winning resolution.
//
// Settlement is fire-and-forget: retry and confirmation are the gateway's
// responsibility, and the fairness guarantee is complete the moment the
// resolution's ledger entry exists, regardless of settlement completion.
type Settlement interface {
	Notify(ctx context.Context, playerID string, amountCents int64, reason string)
}

// Broadcast publishes events for live dashboards. Delivery failure must not
// roll back the underlying state change.
type Broadcast interface {
	Publish(eventType string, payload map[string]any)
}

// LogSettlement is the default settlement gateway; it only records the
// request. Deployments wire a real on-chain gateway in its place.
type LogSettlement struct{}

// Notify implements Settlement.
func (LogSettlement) Notify(_ context.Context, playerID string, amountCents int64, reason string) {
	log.Printf("settlement requested player=%s amount_cents=%d reason=%s", playerID, amountCents, reason)
}

// LogBroadcast is the default broadcast sink; it only records the event.
type LogBroadcast struct{}

// Publish implements Broadcast.
func (LogBroadcast) Publish(eventType string, payload map[string]any) {
	log.Printf("broadcast event=%s payload=%v", eventType, payload)
}
