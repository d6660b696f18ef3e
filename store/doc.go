// Package store provides a single-table DynamoDB document store with
// referential integrity and per-document authorization.
//
// Documents are addressed by a resource type partition key and a sort key
// derived from the document's natural key. Writes are transactional: a
// document's reference and descriptor checks commit atomically with the
// document itself, so a referenced document cannot disappear mid-write.
//
// # Operations
//
//   - [Store.Upsert] - insert, falling through to update when the id exists
//   - [Store.Update] - replace an existing document in place
//   - [Store.Delete] - remove a document unless others still reference it
//   - [Store.GetByID] - fetch one document with access resolution
//   - [Store.GetList] - page through all documents of a resource type
//
// # Reference graph
//
// Each validated document's outbound references are mirrored as paired edge
// items, written best effort after the primary commit. The reverse direction
// protects referenced documents from deletion and names the blockers when a
// delete is refused.
//
// # Authorization
//
// Two strategies, selected per request via [Security]: ownership-based, where
// the creating client owns the document, and hierarchical, where access
// resolves through education-organization and student claims, including
// indirect relationships through an association resource.
//
// # Configuration
//
// [DefaultConfig] targets a standard deployment. TransactionItemLimit bounds
// every transaction the store composes; writes whose checks cannot fit are
// rejected rather than committed with truncated validation.
package store
