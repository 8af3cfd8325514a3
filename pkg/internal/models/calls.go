package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallType = string

const (
	CallTypeVoice = CallType("voice")
	CallTypeVideo = CallType("video")
)

type CallStatus = string

const (
	CallStatusPending   = CallStatus("pending")
	CallStatusConnected = CallStatus("connected")
	CallStatusDeclined  = CallStatus("declined")
	CallStatusMissed    = CallStatus("missed")
	CallStatusEnded     = CallStatus("ended")
)

// CallRecord is one invitation in the shared signaling store. The caller
// side creates it as pending; the callee side moves it to declined or the
// session side moves it through connected and ended.
type CallRecord struct {
	BaseModel

	CallID   string     `json:"call_id" gorm:"uniqueIndex"`
	Status   CallStatus `json:"status" gorm:"index"`
	CallType CallType   `json:"call_type"`

	FromID  uint  `json:"from_id"`
	ToID    *uint `json:"to_id"`
	GroupID *uint `json:"group_id"`

	From  Account `json:"from" gorm:"foreignKey:FromID"`
	Group *Group  `json:"group,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	Metadata datatypes.JSONMap `json:"metadata"`
}

func (v CallRecord) IsGroupCall() bool {
	return v.GroupID != nil
}

// NewIncomingCall freezes the caller's display identity into the
// emission for one record.
func NewIncomingCall(record CallRecord, caller Account) IncomingCall {
	return IncomingCall{
		CallID:     record.CallID,
		FromID:     record.FromID,
		FromName:   caller.DisplayName(),
		FromAvatar: caller.AvatarURL(),
		CallType:   record.CallType,
		GroupID:    record.GroupID,
		Timestamp:  record.StartedAt,
	}
}

// IncomingCall is the transient emission handed to a watching client. The
// display fields are resolved at notify time and never kept in sync.
type IncomingCall struct {
	CallID     string    `json:"call_id"`
	FromID     uint      `json:"from_id"`
	FromName   string    `json:"from_name"`
	FromAvatar string    `json:"from_avatar"`
	CallType   CallType  `json:"call_type"`
	GroupID    *uint     `json:"group_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
