package models

type Group struct {
	BaseModel

	Alias       string        `json:"alias" gorm:"uniqueIndex"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Members     []GroupMember `json:"members"`
	AccountID   uint          `json:"account_id"`
}

type GroupMember struct {
	BaseModel

	GroupID   uint    `json:"group_id"`
	AccountID uint    `json:"account_id"`
	Group     Group   `json:"group"`
	Account   Account `json:"account"`
}
