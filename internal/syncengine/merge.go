package syncengine

import (
	"budgetsync/internal/core"
)

// Merge reconciles a local aggregate with a freshly fetched remote one,
// last writer wins per entity.
//
// For each list the remote entities seed the result; a local entity
// replaces its remote counterpart only when its version is strictly newer,
// and local-only entities are kept. Ties go to the remote copy. The user
// profile is replaced whole: local wins only with a strictly newer
// UpdatedAt, and a missing remote profile keeps the local one.
//
// Output order is remote order followed by local-only entities.
func Merge(local, remote core.LocalData) core.LocalData {
	return core.LocalData{
		Transactions: mergeEntities(local.Transactions, remote.Transactions),
		Categories:   mergeEntities(local.Categories, remote.Categories),
		Budgets:      mergeEntities(local.Budgets, remote.Budgets),
		User:         mergeUser(local.User, remote.User),
	}
}

func mergeEntities[T core.Entity](local, remote []T) []T {
	out := make([]T, 0, len(remote)+len(local))
	index := make(map[string]int, len(remote)+len(local))

	for _, r := range remote {
		if i, dup := index[r.EntityID()]; dup {
			out[i] = r
			continue
		}
		index[r.EntityID()] = len(out)
		out = append(out, r)
	}

	for _, l := range local {
		i, exists := index[l.EntityID()]
		if !exists {
			index[l.EntityID()] = len(out)
			out = append(out, l)
			continue
		}
		if core.IsNewer(l.Version(), out[i].Version()) {
			out[i] = l
		}
	}
	return out
}

func mergeUser(local, remote core.User) core.User {
	if remote.IsZero() {
		return local
	}
	if core.IsNewer(local.UpdatedAt, remote.UpdatedAt) {
		return local
	}
	return remote
}
