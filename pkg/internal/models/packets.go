package models

import jsoniter "github.com/json-iterator/go"

const (
	UnifiedCallIncoming  = "calls.incoming"
	UnifiedCallRing      = "calls.ring"
	UnifiedCallRingStop  = "calls.ring.stop"
	UnifiedCallAlert     = "calls.alert"
	UnifiedCallMissed    = "calls.missed"
	UnifiedCallSession   = "calls.session"
	UnifiedCallConnected = "calls.connected"

	UnifiedAlertRequest = "alerts.request"
)

type UnifiedPacket struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
}

func (v UnifiedPacket) Marshal() []byte {
	raw, _ := jsoniter.Marshal(v)
	return raw
}
