// Package storage persists the watcher's durable state:
//
//   - subscriptions (PKK + owner name, used for upstream status calls)
//   - contacts (notification channels per PKK)
//   - watermarks (last observed status-history length per PKK)
//
// Rows are keyed by a generated id; the PKK is the lookup field.
package storage
