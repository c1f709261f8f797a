// Package api contains the HTTP surface of the control plane.
//
// Handlers are organized as route modules by concern:
//
//   - verification/: the public read-only surface (reveal payloads, ledger
//     chain verification, registry snapshot)
//   - governance/: the authenticated quorum action endpoint
//   - fairness/: the player-facing commitment endpoints
//
// Each module declares narrow service interfaces for the domain services it
// calls and registers its routes on a shared mux. Cross-cutting HTTP behavior
// (middleware, JSON encoding, error mapping) lives in httpx; admin grant
// verification lives in admingrant.
package api
