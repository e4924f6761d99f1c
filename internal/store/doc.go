// Package store persists session records keyed by session id with
// non-destructive merge semantics: an upsert overwrites only the fields it
// supplies and preserves everything else already stored. Two backends are
// provided, a JSON-file-per-session store and a sqlite store.
package store
