package models

import "time"

type UserType string

const (
	UserTypePassenger UserType = "passenger"
	UserTypeDriver    UserType = "driver"
	UserTypeAdmin     UserType = "admin"
)

// User is the read-only view of the user directory this service needs:
// display data for notification payloads and driver onboarding flags.
// The table is owned by the identity service.
type User struct {
	ID               string    `gorm:"column:id;primaryKey"`
	Name             string    `gorm:"column:name;not null"`
	Avatar           string    `gorm:"column:avatar"`
	UserType         string    `gorm:"column:user_type;not null"`
	DriverRegistered bool      `gorm:"column:driver_registered;not null;default:false"`
	DriverApproved   bool      `gorm:"column:driver_approved;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
