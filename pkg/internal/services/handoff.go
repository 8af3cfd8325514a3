package services

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/uniwave/calling/pkg/internal/models"
)

// CallSession is what a connected participant needs to reconstruct the
// call screen, even across a full reload: every exported field doubles as
// a routing parameter on the client side.
type CallSession struct {
	CallID   string          `json:"call_id"`
	Room     string          `json:"room"`
	Token    string          `json:"token"`
	Endpoint string          `json:"endpoint"`
	CallType models.CallType `json:"call_type"`

	user       models.Account
	audioMuted bool
	videoOff   bool
}

// DeriveRoomName builds the conference room identifier from the two
// participant ids and the instant of acceptance. No server-issued id is
// needed; the pair plus the instant is unique per call attempt.
func DeriveRoomName(a, b uint, at time.Time) string {
	return fmt.Sprintf("call_%d_%d_%d", a, b, at.Unix())
}

// JoinCall is the accept-side handoff. The first accept derives the room,
// creates it at the conference backend, marks the invitation connected
// and pushes the caller their own session; later accepts of an already
// connected group call reuse the recorded room. Every path ends with a
// join token scoped to the joining account.
func JoinCall(call models.IncomingCall, user models.Account) (*CallSession, error) {
	record, err := GetCallRecord(call.CallID)
	if err != nil {
		return nil, err
	}

	room, _ := record.Metadata["room"].(string)
	if len(room) == 0 {
		room = DeriveRoomName(record.FromID, user.ID, time.Now())

		if err := CreateRoom(room); err != nil {
			return nil, fmt.Errorf("remote livekit error: %v", err)
		}
		if err := ConnectCall(record.CallID, room); err != nil {
			return nil, err
		}

		notifyCallerConnected(record, room)
	}

	return newCallSession(record, user, room)
}

// ResumeCall rebuilds a participant's session for an already connected
// call from the room recorded on it, e.g. after a page reload.
func ResumeCall(record models.CallRecord, user models.Account) (*CallSession, error) {
	room, _ := record.Metadata["room"].(string)
	if len(room) == 0 {
		return nil, fmt.Errorf("call has no room attached")
	}
	return newCallSession(record, user, room)
}

// notifyCallerConnected hands the caller their side of the session over
// their gateway connection; without one they fall back to polling the
// call record.
func notifyCallerConnected(record models.CallRecord, room string) {
	session, err := newCallSession(record, record.From, room)
	if err != nil {
		log.Warn().Err(err).Str("call", record.CallID).
			Msg("Unable to issue the caller a session token...")
		return
	}
	PushToClient(record.FromID, models.UnifiedPacket{
		Action:  models.UnifiedCallConnected,
		Payload: session,
	})
}

func newCallSession(record models.CallRecord, user models.Account, room string) (*CallSession, error) {
	token, err := EncodeRoomToken(user, room)
	if err != nil {
		return nil, err
	}
	return &CallSession{
		CallID:   record.CallID,
		Room:     room,
		Token:    token,
		Endpoint: viper.GetString("calling.endpoint"),
		CallType: record.CallType,
		user:     user,
	}, nil
}

func EncodeRoomToken(user models.Account, room string) (string, error) {
	grant := &auth.VideoGrant{
		Room:     room,
		RoomJoin: true,
	}

	metadata, _ := jsoniter.Marshal(user)

	duration := time.Second * time.Duration(viper.GetInt("calling.token_duration"))
	tk := auth.NewAccessToken(viper.GetString("calling.api_key"), viper.GetString("calling.api_secret"))
	tk.AddGrant(grant).
		SetIdentity(user.Name).
		SetName(user.DisplayName()).
		SetMetadata(string(metadata)).
		SetValidFor(duration)

	return tk.ToJWT()
}

// ToggleAudio flips the microphone state and pushes the resulting publish
// permissions to the conference side; with no active session it is a
// no-op. Returns the resulting enabled state.
func (s *CallSession) ToggleAudio(enabled bool) (bool, error) {
	if s == nil {
		return false, nil
	}
	s.audioMuted = !enabled
	return !s.audioMuted, s.syncPublishSources()
}

func (s *CallSession) ToggleVideo(enabled bool) (bool, error) {
	if s == nil {
		return false, nil
	}
	s.videoOff = !enabled
	return !s.videoOff, s.syncPublishSources()
}

// publishSources maps the local mute flags onto the track sources the
// participant may still publish. Screen sharing is never muted remotely.
func (s *CallSession) publishSources() []livekit.TrackSource {
	sources := []livekit.TrackSource{
		livekit.TrackSource_SCREEN_SHARE,
		livekit.TrackSource_SCREEN_SHARE_AUDIO,
	}
	if !s.audioMuted {
		sources = append(sources, livekit.TrackSource_MICROPHONE)
	}
	if !s.videoOff {
		sources = append(sources, livekit.TrackSource_CAMERA)
	}
	return sources
}

func (s *CallSession) syncPublishSources() error {
	if len(s.Room) == 0 || len(s.user.Name) == 0 {
		return nil
	}
	return UpdateParticipantSources(s.Room, s.user.Name, s.publishSources())
}

// End closes out the participant's call. Safe to call on a nil session or
// more than once; the record transition also disposes the room.
func (s *CallSession) End() error {
	if s == nil || len(s.Room) == 0 {
		return nil
	}
	room := s.Room
	s.Room = ""

	if len(s.CallID) > 0 {
		_, err := EndCallRecord(s.CallID, s.user)
		return err
	}
	return DeleteRoom(room)
}
