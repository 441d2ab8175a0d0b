// Package realtime fans document changes out to WebSocket connections grouped
// in rooms. A room is either a role title or a user room ("user:<id>").
package realtime

import (
	"encoding/json"

	"github.com/geocoder89/docman/internal/domain/role"
)

// Server to client events.
const (
	EventDocumentCreate     = "document:create"
	EventDocumentUpdate     = "document:update"
	EventDocumentRoleUpdate = "document:role-update"
	EventDocumentDelete     = "document:delete"
	EventRoleJoined         = "role:joined"
	EventRoleLeft           = "role:left"
	EventError              = "error"

	// EventAccessChange only travels between instances; clients never see it.
	EventAccessChange = "user:access-change"
)

// Client to server events.
const (
	EventRoleJoin  = "role:join"
	EventRoleLeave = "role:leave"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Broadcast is the unit that travels through the broker: one envelope and
// the rooms that should receive it.
type Broadcast struct {
	Rooms    []string      `json:"rooms"`
	Envelope Envelope      `json:"envelope"`
	Access   *AccessChange `json:"access,omitempty"`
}

// AccessChange tells every instance that a user's rights changed under live
// connections. Removed means the account is gone.
type AccessChange struct {
	UserID  string     `json:"userId"`
	Role    role.Title `json:"role,omitempty"`
	Removed bool       `json:"removed,omitempty"`
}

// roleChange is all the rooms of a document's previous role learn about it:
// enough to drop it, nothing they may no longer read.
type roleChange struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type errorData struct {
	Message string `json:"message"`
}

func newEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}
