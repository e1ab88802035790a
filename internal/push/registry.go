package push

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/observability/logger"
)

// Conn is the transport side of a registered connection. The registry
// serialises writes per connection, so implementations need no locking
// of their own.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Topics clients can subscribe to. Both are on by default; subscribe
// and unsubscribe messages toggle them.
const (
	TopicNotifications = "notifications"
	TopicActivity      = "activity"
)

// topicFor maps envelope types to the topic gating their delivery.
// Types without a topic are always delivered.
var topicFor = map[string]string{
	TypeNotification: TopicNotifications,
	TypeActivity:     TopicActivity,
}

// connection pairs a transport with its identity and per-connection
// write mutex: an envelope is either fully sent or the connection is
// dropped, never interleaved.
type connection struct {
	id      string
	user    string
	account string

	mu     sync.Mutex
	conn   Conn
	topics map[string]bool
}

func (c *connection) send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *connection) wants(env Envelope) bool {
	topic, gated := topicFor[env.Type()]
	if !gated {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *connection) setTopic(topic string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, known := c.topics[topic]; known {
		c.topics[topic] = on
	}
}

// Registry indexes live connections three ways: by connection id, by
// user and by account.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*connection
	byUser    map[string]map[string]struct{}
	byAccount map[string]map[string]struct{}
	log       *zap.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*connection),
		byUser:    make(map[string]map[string]struct{}),
		byAccount: make(map[string]map[string]struct{}),
		log:       logger.Named("push"),
	}
}

// Register assigns a fresh connection id, indexes the connection and
// completes the handshake with a welcome envelope. A failed welcome
// drops the connection and still returns its id.
func (r *Registry) Register(conn Conn, user, account string) string {
	c := &connection{
		id:      uuid.NewString(),
		user:    user,
		account: account,
		conn:    conn,
		topics: map[string]bool{
			TopicNotifications: true,
			TopicActivity:      true,
		},
	}

	r.mu.Lock()
	r.conns[c.id] = c
	if user != "" {
		if r.byUser[user] == nil {
			r.byUser[user] = make(map[string]struct{})
		}
		r.byUser[user][c.id] = struct{}{}
	}
	if account != "" {
		if r.byAccount[account] == nil {
			r.byAccount[account] = make(map[string]struct{})
		}
		r.byAccount[account][c.id] = struct{}{}
	}
	r.mu.Unlock()

	welcome := NewEnvelope("welcome", map[string]any{
		"connection_id": c.id,
		"server_time":   time.Now().UTC().Format(time.RFC3339),
	}, nil)
	if err := c.send(welcome); err != nil {
		r.log.Warn("welcome send failed", zap.String("conn", c.id), zap.Error(err))
		r.Drop(c.id)
	} else {
		r.log.Info("connection registered",
			zap.String("conn", c.id), zap.String("user", user), zap.String("account", account))
	}
	return c.id
}

// Drop removes the connection from every index, pruning empty sets,
// and closes the transport. Idempotent.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	if c.user != "" {
		if set := r.byUser[c.user]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byUser, c.user)
			}
		}
	}
	if c.account != "" {
		if set := r.byAccount[c.account]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byAccount, c.account)
			}
		}
	}
	r.mu.Unlock()

	_ = c.conn.Close()
	r.log.Info("connection dropped", zap.String("conn", id))
}

// SendOne attempts a single send; a send failure drops the connection.
func (r *Registry) SendOne(id string, env Envelope) bool {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.send(env); err != nil {
		r.log.Warn("send failed", zap.String("conn", id), zap.Error(err))
		r.Drop(id)
		return false
	}
	return true
}

// SendUser fans out to every connection of user, swallowing
// per-connection failures. Returns the number of successful sends.
func (r *Registry) SendUser(user string, env Envelope) int {
	return r.fanOut(r.idsFor(r.byUser, user), env)
}

// SendAccount fans out to every connection of account.
func (r *Registry) SendAccount(account string, env Envelope) int {
	return r.fanOut(r.idsFor(r.byAccount, account), env)
}

// Broadcast fans out to every registered connection.
func (r *Registry) Broadcast(env Envelope) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return r.fanOut(ids, env)
}

func (r *Registry) idsFor(index map[string]map[string]struct{}, key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := index[key]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) fanOut(ids []string, env Envelope) int {
	sent := 0
	for _, id := range ids {
		r.mu.RLock()
		c, ok := r.conns[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if !c.wants(env) {
			continue
		}
		if err := c.send(env); err != nil {
			r.log.Warn("fan-out send failed", zap.String("conn", id), zap.Error(err))
			r.Drop(id)
			continue
		}
		sent++
	}
	return sent
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Subscribe toggles a topic for one connection.
func (r *Registry) Subscribe(id, topic string, on bool) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if ok {
		c.setTopic(topic, on)
	}
}
