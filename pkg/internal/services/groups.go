package services

import (
	"errors"

	"github.com/uniwave/calling/pkg/internal/database"
	"github.com/uniwave/calling/pkg/internal/models"
	"gorm.io/gorm"
)

func GetGroup(id uint) (models.Group, error) {
	var group models.Group
	if err := database.C.Where("id = ?", id).First(&group).Error; err != nil {
		return group, err
	}
	return group, nil
}

func ListGroupMembers(groupId uint) ([]models.GroupMember, error) {
	var members []models.GroupMember
	if err := database.C.
		Where(&models.GroupMember{GroupID: groupId}).
		Find(&members).Error; err != nil {
		return members, err
	}
	return members, nil
}

// CheckGroupMember reports whether the account currently belongs to the
// group. A missing membership row is not an error; anything else is.
func CheckGroupMember(accountId, groupId uint) (bool, error) {
	var member models.GroupMember
	if err := database.C.Where(&models.GroupMember{
		GroupID:   groupId,
		AccountID: accountId,
	}).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
