package api

import (
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/uniwave/calling/pkg/internal/http/exts"
	"github.com/uniwave/calling/pkg/internal/models"
	"github.com/uniwave/calling/pkg/internal/services"
)

var callLocks sync.Map

func isCallParticipant(user models.Account, record models.CallRecord) bool {
	if record.FromID == user.ID {
		return true
	}
	if record.IsGroupCall() {
		ok, err := services.CheckGroupMember(user.ID, *record.GroupID)
		return err == nil && ok
	}
	return record.ToID != nil && *record.ToID == user.ID
}

// getCall lets any participant re-read the invitation; once it is
// connected the response carries their own session for the room, which is
// how the caller side joins after the callee accepted.
func getCall(c *fiber.Ctx) error {
	user := c.Locals("user").(models.Account)
	callId := c.Params("callId")

	record, err := services.GetCallRecord(callId)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if !isCallParticipant(user, record) {
		return fiber.NewError(fiber.StatusForbidden, "you are not a participant of this call")
	}

	resp := fiber.Map{"call": record}
	if record.Status == models.CallStatusConnected {
		if session, err := services.ResumeCall(record, user); err == nil {
			resp["session"] = session
		}
	}
	return c.JSON(resp)
}

func listPendingCalls(c *fiber.Ctx) error {
	user := c.Locals("user").(models.Account)
	take := c.QueryInt("take", 0)

	if calls, err := services.ListPendingCalls(user, take); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else {
		return c.JSON(calls)
	}
}

func countMissedCalls(c *fiber.Ctx) error {
	user := c.Locals("user").(models.Account)

	if count, err := services.CountMissedCalls(user); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else {
		return c.JSON(fiber.Map{"count": count})
	}
}

func startCall(c *fiber.Ctx) error {
	user := c.Locals("user").(models.Account)

	var data struct {
		ToID     *uint           `json:"to_id"`
		GroupID  *uint           `json:"group_id"`
		CallType models.CallType `json:"call_type" validate:"required,oneof=voice video"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	if _, ok := callLocks.Load(user.ID); ok {
		return fiber.NewError(fiber.StatusLocked, "there is already a call in creation progress for you")
	} else {
		callLocks.Store(user.ID, true)
	}
	defer callLocks.Delete(user.ID)

	call, err := services.NewCallRecord(user, data.ToID, data.GroupID, data.CallType)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(call)
}

func acceptCall(c *fiber.Ctx) error {
	user := c.Locals("user").(models.Account)
	callId := c.Params("callId")

	record, err := services.GetCallRecord(callId)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	// Group members keep joining after the first accept connected the call.
	joinable := record.Status == models.CallStatusPending ||
		(record.IsGroupCall() && record.Status == models.CallStatusConnected)
	if !joinable {
		return fiber.NewError(fiber.StatusGone, "call is no longer joinable")
	}

	if record.IsGroupCall() {
		if ok, err := services.CheckGroupMember(user.ID, *record.GroupID); err != nil || !ok {
			return fiber.NewError(fiber.StatusForbidden, "you are not a member of this group")
		}
	} else if record.ToID == nil || *record.ToID != user.ID {
		return fiber.NewError(fiber.StatusForbidden, "this call is not addressed to you")
	}

	session, err := services.JoinCall(models.NewIncomingCall(record, record.From), user)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(session)
}

func declineCall(c *fiber.Ctx) error {
	user := c.Locals("user").(models.Account)
	callId := c.Params("callId")

	if err := services.DeclineCall(callId, user); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.SendStatus(fiber.StatusOK)
}

func endCall(c *fiber.Ctx) error {
	user := c.Locals("user").(models.Account)
	callId := c.Params("callId")

	if call, err := services.EndCallRecord(callId, user); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	} else {
		return c.JSON(call)
	}
}
