package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/uniwave/calling/pkg/internal/database"
	"github.com/uniwave/calling/pkg/internal/models"
)

// ListPendingCalls returns the caller-visible pending invitations for one
// account: direct invitations plus group calls in groups it belongs to.
func ListPendingCalls(user models.Account, take int) ([]models.CallRecord, error) {
	if take <= 0 || take > 100 {
		take = 100
	}

	var calls []models.CallRecord
	if err := database.C.
		Where("status = ?", models.CallStatusPending).
		Where(
			database.C.Where("to_id = ?", user.ID).
				Or("group_id IN (?)", database.C.
					Model(&models.GroupMember{}).
					Select("group_id").
					Where("account_id = ?", user.ID)),
		).
		Limit(take).
		Order("created_at ASC").
		Preload("From").
		Find(&calls).Error; err != nil {
		return calls, err
	}
	return calls, nil
}

func GetCallRecord(callId string) (models.CallRecord, error) {
	var call models.CallRecord
	if err := database.C.
		Where("call_id = ?", callId).
		Preload("From").
		First(&call).Error; err != nil {
		return call, err
	}
	return call, nil
}

// NewCallRecord creates a pending invitation on behalf of the caller.
// Exactly one of toId and groupId must be set.
func NewCallRecord(founder models.Account, toId, groupId *uint, callType models.CallType) (models.CallRecord, error) {
	if (toId == nil) == (groupId == nil) {
		return models.CallRecord{}, fmt.Errorf("a call must have either a callee or a group")
	}
	if callType != models.CallTypeVoice && callType != models.CallTypeVideo {
		return models.CallRecord{}, fmt.Errorf("unsupported call type: %s", callType)
	}

	if groupId != nil {
		if ok, err := CheckGroupMember(founder.ID, *groupId); err != nil {
			return models.CallRecord{}, err
		} else if !ok {
			return models.CallRecord{}, fmt.Errorf("you are not a member of this group")
		}
	} else if *toId == founder.ID {
		return models.CallRecord{}, fmt.Errorf("unable to call yourself")
	}

	call := models.CallRecord{
		CallID:    uuid.NewString(),
		Status:    models.CallStatusPending,
		CallType:  callType,
		FromID:    founder.ID,
		ToID:      toId,
		GroupID:   groupId,
		StartedAt: time.Now(),
	}

	if err := database.C.Save(&call).Error; err != nil {
		return call, err
	}
	call.From = founder
	return call, nil
}

// DeclineCall moves a pending invitation to declined. Only the callee of a
// direct call, or a member of the target group, may decline it.
func DeclineCall(callId string, user models.Account) error {
	call, err := GetCallRecord(callId)
	if err != nil {
		return err
	}
	if call.Status != models.CallStatusPending {
		return fmt.Errorf("call is no longer pending")
	}

	if call.IsGroupCall() {
		if ok, err := CheckGroupMember(user.ID, *call.GroupID); err != nil || !ok {
			return fmt.Errorf("you cannot decline a call of a group you are not in")
		}
	} else if call.ToID == nil || *call.ToID != user.ID {
		return fmt.Errorf("this call is not addressed to you")
	}

	return database.C.Model(&models.CallRecord{}).
		Where("call_id = ? AND status = ?", callId, models.CallStatusPending).
		Updates(map[string]any{
			"status":   models.CallStatusDeclined,
			"ended_at": lo.ToPtr(time.Now()),
		}).Error
}

// MarkCallMissed is the ring-expiry transition. It only touches records
// that are still pending, so it never races an accept or decline backwards.
func MarkCallMissed(callId string) error {
	return database.C.Model(&models.CallRecord{}).
		Where("call_id = ? AND status = ?", callId, models.CallStatusPending).
		Update("status", models.CallStatusMissed).Error
}

// ConnectCall records that a session was established for the invitation
// and remembers the conference room it landed in.
func ConnectCall(callId string, room string) error {
	call, err := GetCallRecord(callId)
	if err != nil {
		return err
	}
	if call.Status != models.CallStatusPending && call.Status != models.CallStatusConnected {
		return fmt.Errorf("call can no longer be connected")
	}

	if call.Metadata == nil {
		call.Metadata = map[string]any{}
	}
	call.Metadata["room"] = room
	call.Status = models.CallStatusConnected

	return database.C.Save(&call).Error
}

func EndCallRecord(callId string, user models.Account) (models.CallRecord, error) {
	call, err := GetCallRecord(callId)
	if err != nil {
		return call, err
	}
	if call.EndedAt != nil {
		return call, nil
	}

	isParticipant := call.FromID == user.ID ||
		(call.ToID != nil && *call.ToID == user.ID)
	if !isParticipant && call.IsGroupCall() {
		isParticipant, _ = CheckGroupMember(user.ID, *call.GroupID)
	}
	if !isParticipant {
		return call, fmt.Errorf("only a participant can end this call")
	}

	call.Status = models.CallStatusEnded
	call.EndedAt = lo.ToPtr(time.Now())
	if err := database.C.Save(&call).Error; err != nil {
		return call, err
	}

	if room, ok := call.Metadata["room"].(string); ok && len(room) > 0 {
		if err := DeleteRoom(room); err != nil {
			// The conference side cleans idle rooms up on its own.
			log.Warn().Err(err).Str("room", room).Msg("Unable to delete room at conference side...")
		}
	}

	return call, nil
}

// CountMissedCalls powers the badge on the client's call history tab.
func CountMissedCalls(user models.Account) (int64, error) {
	var count int64
	err := database.C.Model(&models.CallRecord{}).
		Where("status = ? AND to_id = ?", models.CallStatusMissed, user.ID).
		Count(&count).Error
	return count, err
}
