// Package presence tracks which users currently hold a live socket.
//
// A Directory is not safe for concurrent use. The websocket manager owns one
// and only touches it from its Run goroutine.
package presence

import (
	"sort"

	"github.com/google/uuid"
)

// Directory maps a user to the one connection that currently routes to them.
// When a user connects twice the later connection wins.
type Directory[C comparable] struct {
	routes map[uuid.UUID]C
}

func NewDirectory[C comparable]() *Directory[C] {
	return &Directory[C]{routes: make(map[uuid.UUID]C)}
}

// Register routes userID to conn and returns the connection it replaced, if any.
func (d *Directory[C]) Register(userID uuid.UUID, conn C) (prev C, replaced bool) {
	prev, replaced = d.routes[userID]
	d.routes[userID] = conn
	return prev, replaced
}

// Unregister drops userID only if conn is still its current route. It reports
// whether the directory changed; stale and unknown entries are a no-op.
func (d *Directory[C]) Unregister(userID uuid.UUID, conn C) bool {
	cur, ok := d.routes[userID]
	if !ok || cur != conn {
		return false
	}
	delete(d.routes, userID)
	return true
}

// Lookup returns the live route for userID.
func (d *Directory[C]) Lookup(userID uuid.UUID) (C, bool) {
	conn, ok := d.routes[userID]
	return conn, ok
}

// Online returns every registered user, sorted so snapshots are stable.
func (d *Directory[C]) Online() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.routes))
	for id := range d.routes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (d *Directory[C]) Len() int {
	return len(d.routes)
}
