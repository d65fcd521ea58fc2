package model

type User struct {
	BaseModel
	Username     string `gorm:"uniqueIndex;size:50;not null" json:"username"`
	PasswordHash string `gorm:"not null" json:"-"`
	Email        string `gorm:"size:100" json:"email"`

	// 系统级角色 (sys_admin, user)
	Role string `gorm:"default:'user'" json:"role"`
}
