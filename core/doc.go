// Package core contains the update domain types, the collaborator contracts
// consumed by the polling engine, configuration, and the error envelope.
// Transport, storage, and engine packages depend on core; core depends on
// none of them.
package core
