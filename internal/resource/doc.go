// Package resource provisions document service resources from manifests.
//
// This package defines:
//   - Reconciler, which makes a database or collection exist with at most one create call
//   - RetryingMutator, which repeats a mutation while the service reports conflicts
//   - Classify and RetryHint, the single place service failures are interpreted
//   - Database, collection and offer managers binding the above to a docdb.Client
//   - ManifestParser, ManifestRegistry and ReconciliationController for manifests
package resource
