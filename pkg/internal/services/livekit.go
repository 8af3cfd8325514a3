package services

import (
	"context"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/spf13/viper"
)

var (
	Lk     *lksdk.RoomServiceClient
	lkOnce sync.Once
)

// SetupLiveKit bootstraps the conference room client. It is idempotent so
// callers can invoke it lazily right before first use; concurrent calls
// collapse onto the same initialization.
func SetupLiveKit() {
	lkOnce.Do(func() {
		host := "https://" + viper.GetString("calling.endpoint")

		Lk = lksdk.NewRoomServiceClient(
			host,
			viper.GetString("calling.api_key"),
			viper.GetString("calling.api_secret"),
		)
	})
}

func CreateRoom(name string) error {
	SetupLiveKit()
	_, err := Lk.CreateRoom(context.Background(), &livekit.CreateRoomRequest{
		Name:            name,
		EmptyTimeout:    viper.GetUint32("calling.empty_timeout_duration"),
		MaxParticipants: viper.GetUint32("calling.max_participants"),
	})
	return err
}

func DeleteRoom(name string) error {
	SetupLiveKit()
	_, err := Lk.DeleteRoom(context.Background(), &livekit.DeleteRoomRequest{
		Room: name,
	})
	return err
}

// UpdateParticipantSources rewrites which track sources one participant
// may publish into the room; the conference side mutes anything removed.
func UpdateParticipantSources(room, identity string, sources []livekit.TrackSource) error {
	SetupLiveKit()
	_, err := Lk.UpdateParticipant(context.Background(), &livekit.UpdateParticipantRequest{
		Room:     room,
		Identity: identity,
		Permission: &livekit.ParticipantPermission{
			CanSubscribe:      true,
			CanPublish:        true,
			CanPublishData:    true,
			CanPublishSources: sources,
		},
	})
	return err
}

func ListRoomParticipants(name string) ([]*livekit.ParticipantInfo, error) {
	SetupLiveKit()
	res, err := Lk.ListParticipants(context.Background(), &livekit.ListParticipantsRequest{
		Room: name,
	})
	if err != nil {
		return nil, err
	}
	return res.Participants, nil
}
