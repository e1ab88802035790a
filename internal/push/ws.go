package push

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/observability/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser origins are enforced by the CORS middleware upstream.
		return true
	},
}

const writeDeadline = 10 * time.Second

// wsConn adapts a gorilla connection to the registry's Conn. The
// registry serialises writes, so setting the deadline here is safe.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error {
	_ = w.c.SetWriteDeadline(time.Now().Add(writeDeadline))
	return w.c.WriteJSON(v)
}

func (w *wsConn) Close() error { return w.c.Close() }

// inbound is the client→server message frame.
type inbound struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// Handler upgrades GET /ws?user=&account= and runs the read loop until
// the client goes away.
func Handler(reg *Registry) http.HandlerFunc {
	log := logger.Named("push.ws")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade failed", zap.Error(err))
			return
		}

		user := r.URL.Query().Get("user")
		account := r.URL.Query().Get("account")
		id := reg.Register(&wsConn{c: conn}, user, account)

		readLoop(reg, log, conn, id)
	}
}

func readLoop(reg *Registry, log *zap.Logger, conn *websocket.Conn, id string) {
	defer reg.Drop(id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", zap.String("conn", id), zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug("undecodable message dropped", zap.String("conn", id))
			continue
		}

		switch msg.Type {
		case "ping":
			reg.SendOne(id, NewEnvelope("pong", map[string]any{
				"timestamp": time.Now().Unix(),
			}, nil))
		case "subscribe":
			reg.Subscribe(id, msg.Topic, true)
		case "unsubscribe":
			reg.Subscribe(id, msg.Topic, false)
		default:
			log.Debug("unknown message type dropped",
				zap.String("conn", id), zap.String("type", msg.Type))
		}
	}
}
