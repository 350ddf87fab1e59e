package chat

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Router delivers messages to sessions found in a Registry. Deliveries are
// synchronous and best-effort: a failed Send is logged and skipped.
type Router struct {
	registry *Registry
	log      logrus.FieldLogger
}

// NewRouter creates a router over registry.
func NewRouter(registry *Registry, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{registry: registry, log: log}
}

// Broadcast sends "[name] body" to every named session except sender.
// It returns the number of successful deliveries.
func (r *Router) Broadcast(sender SessionRef, body string) int {
	name := r.registry.Username(sender)
	if name == "" {
		return 0
	}
	return r.deliverToOthers(sender, BroadcastMessage(name, body))
}

// AnnounceJoin tells every other named session that ref joined as name.
func (r *Router) AnnounceJoin(ref SessionRef, name string) int {
	return r.deliverToOthers(ref, JoinMessage(name))
}

// AnnounceLeave tells every other named session that name left.
func (r *Router) AnnounceLeave(ref SessionRef, name string) int {
	return r.deliverToOthers(ref, LeaveMessage(name))
}

// SendPrivate delivers body from sender to the session named target and a
// confirmation back to the sender, or a not-found notice to the sender only.
// The two deliveries are independent.
func (r *Router) SendPrivate(sender SessionRef, senderConn Conn, target, body string) error {
	from := r.registry.Username(sender)

	conn, err := r.registry.Find(target)
	if errors.Is(err, ErrNotFound) {
		r.deliver(senderConn, from, NotFoundMessage(target))
		return err
	}

	r.deliver(conn, target, PrivateFromMessage(from, body))
	r.deliver(senderConn, from, PrivateToMessage(target, body))
	return nil
}

// Reply sends msg to a single connection.
func (r *Router) Reply(conn Conn, name, msg string) bool {
	return r.deliver(conn, name, msg)
}

// deliverToOthers snapshots the registry, then sends outside its lock.
func (r *Router) deliverToOthers(exclude SessionRef, msg string) int {
	peers := r.registry.SnapshotOthers(exclude)

	delivered := 0
	for _, peer := range peers {
		if r.deliver(peer.Conn, peer.Username, msg) {
			delivered++
		}
	}
	r.log.WithFields(logrus.Fields{
		"targets":   len(peers),
		"delivered": delivered,
	}).Debug("Delivered message to peers")
	return delivered
}

func (r *Router) deliver(conn Conn, name, msg string) bool {
	if conn == nil {
		return false
	}
	if err := conn.Send(msg); err != nil {
		r.log.WithFields(logrus.Fields{
			"user": name,
			"peer": conn.RemoteAddr(),
		}).WithError(err).Debug("Dropping message for unreachable session")
		return false
	}
	return true
}
