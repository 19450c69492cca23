// Package memory defines the domain model of the strata layered memory
// subsystem: items, isolation scopes, federation policies, and the pure
// fusion strategies that combine related items into derived content.
//
// Items are stored under one of three scopes: Entity (a single agent's
// private memory), Relation (an unordered pair of agents), and Collective
// (a shared tier). Each scope is a closed namespace: queries against one
// scope never observe items from another unless the caller explicitly asks
// for the merged all-layers view.
//
// Items are immutable after creation. Updating relation content is modeled
// as a new item plus a MutationRecord rather than an in-place edit, which
// preserves auditability.
package memory
