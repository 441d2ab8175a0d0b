package realtime

import (
	"context"
	"log/slog"
	"strings"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
)

const userRoomPrefix = "user:"

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// RoomsFor lists the rooms that hear about changes to d.
//
//   - private documents reach the admin room only, never the owner's room;
//   - admin documents reach the admin room and the owner's room;
//   - everything else reaches the room named after its role.
func RoomsFor(d document.Document) []string {
	switch d.Role {
	case role.Private:
		return []string{string(role.Admin)}
	case role.Admin:
		return []string{string(role.Admin), UserRoom(d.OwnerID)}
	default:
		return []string{string(d.Role)}
	}
}

// CanJoin reports whether v may subscribe to room. Role rooms need an access
// level at least the room's; a user room is open to its user only.
func CanJoin(v document.Viewer, room string) bool {
	if id, ok := strings.CutPrefix(room, userRoomPrefix); ok {
		return v.Authenticated() && id == v.UserID
	}

	t, err := role.Parse(room)
	if err != nil {
		return false
	}

	level := role.Public.AccessLevel()
	if v.Authenticated() {
		level = v.Role.AccessLevel()
	}

	return t.AccessLevel() <= level
}

type Publisher interface {
	Publish(ctx context.Context, b Broadcast)
}

// Notifier turns document mutations into broadcasts.
type Notifier struct {
	pub Publisher
	log *slog.Logger
}

func NewNotifier(pub Publisher, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{pub: pub, log: log}
}

func (n *Notifier) Created(ctx context.Context, d document.Document) {
	n.publish(ctx, EventDocumentCreate, RoomsFor(d), d)
}

// Updated announces a change. When the role moved, the rooms of the old role
// get document:role-update carrying only the id and new role, and the rooms
// of the new role get the full document as document:update.
func (n *Notifier) Updated(ctx context.Context, before, after document.Document) {
	if before.Role != after.Role {
		n.send(ctx, EventDocumentRoleUpdate, RoomsFor(before), after.ID, roleChange{ID: after.ID, Role: string(after.Role)})
	}
	n.publish(ctx, EventDocumentUpdate, RoomsFor(after), after)
}

func (n *Notifier) Deleted(ctx context.Context, d document.Document) {
	n.publish(ctx, EventDocumentDelete, RoomsFor(d), d)
}

func (n *Notifier) publish(ctx context.Context, event string, rooms []string, d document.Document) {
	n.send(ctx, event, rooms, d.ID, d)
}

func (n *Notifier) send(ctx context.Context, event string, rooms []string, docID string, data any) {
	env, err := newEnvelope(event, data)
	if err != nil {
		n.log.Error("realtime.encode_failed", "event", event, "doc_id", docID, "err", err)
		return
	}

	n.pub.Publish(ctx, Broadcast{Rooms: rooms, Envelope: env})
}
