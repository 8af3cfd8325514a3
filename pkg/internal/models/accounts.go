package models

type Account struct {
	BaseModel

	Name string `json:"name" gorm:"uniqueIndex"`
	Nick string `json:"nick"`

	// Avatar went through several generations of field names on the client
	// side. All of them are kept so older profiles keep rendering.
	Avatar       *string `json:"avatar"`
	Picture      *string `json:"picture"`
	ProfileImage *string `json:"profile_image"`

	Groups []GroupMember `json:"groups" gorm:"foreignKey:AccountID"`
}

// DisplayName coalesces the display name chain: nick first, username after.
func (v Account) DisplayName() string {
	if len(v.Nick) > 0 {
		return v.Nick
	}
	return v.Name
}

// AvatarURL coalesces the legacy avatar fields in their historical order.
func (v Account) AvatarURL() string {
	for _, field := range []*string{v.Avatar, v.Picture, v.ProfileImage} {
		if field != nil && len(*field) > 0 {
			return *field
		}
	}
	return ""
}
