package store

import (
	"basegraph.app/counsel/core/db"
)

// Stores hands out the Postgres-backed stores sharing one querier, so they can run
// inside the same transaction.
type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) CaseFiles() CaseFileStore {
	return NewPostgresCaseFileStore(s.q)
}
