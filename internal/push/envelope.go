// Package push maintains the in-memory registry of live duplex
// connections and fans envelopes out by user or account. It is a
// single-process component by design.
package push

import "time"

// Envelope is a framed JSON message: type, data and a server timestamp,
// plus any caller-supplied extra fields.
type Envelope map[string]any

// NewEnvelope frames data under typ. Extra fields are merged in but
// never override the three reserved keys.
func NewEnvelope(typ string, data any, extra map[string]any) Envelope {
	env := Envelope{}
	for k, v := range extra {
		env[k] = v
	}
	env["type"] = typ
	env["data"] = data
	env["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	return env
}

func (e Envelope) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Envelope kinds with helper constructors.
const (
	TypeNotification  = "notification"
	TypeActivity      = "activity_log"
	TypeRealtime      = "realtime_update"
	TypeSystemStatus  = "system_status"
	TypeCommunication = "communication_event"
)

func Notification(data any) Envelope {
	return NewEnvelope(TypeNotification, data, nil)
}

func ActivityLog(data any) Envelope {
	return NewEnvelope(TypeActivity, data, nil)
}

func RealtimeUpdate(resource string, data any) Envelope {
	return NewEnvelope(TypeRealtime, data, map[string]any{"resource": resource})
}

func SystemStatus(data any) Envelope {
	return NewEnvelope(TypeSystemStatus, data, nil)
}

func CommunicationEvent(channel string, data any) Envelope {
	return NewEnvelope(TypeCommunication, data, map[string]any{"channel": channel})
}
