// Package adapters contains infrastructure implementations of port interfaces.
//
// This package is the ADAPTER LAYER in hexagonal architecture - it implements
// the port interfaces defined in internal/ports using concrete technologies
// (chi, go-spiffe, sqlx/lib/pq, the AWS S3 SDK). Adapters translate between
// the engine and external systems.
//
// Hexagonal Architecture Boundaries:
//   - Adapters implement: internal/ports interfaces
//   - Adapters import from: internal/domain, internal/ports, external SDKs, standard library
//   - Adapters are instantiated: by app.Bootstrap and cmd/popc (composition root)
//   - The engine (internal/app) only sees port interfaces
//
// Adapter Organization
//
//   - inbound/httpapi      - chi HTTP boundary, API-key gate, optional SPIFFE mTLS
//   - outbound/inmemory    - process-local store and transparency log
//   - outbound/postgres    - sqlx store with the atomic sequence CAS
//   - outbound/blob        - filesystem and S3 storage for verified assets
//
// Inbound adapters drive the engine through ports.Engine. Outbound adapters
// are driven by it through ports.Store, ports.TransparencyLog and
// ports.BlobStore.
package adapters
