package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is an account on the platform: a patient, a doctor, or an admin.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	PushToken    *string   `json:"pushToken,omitempty"`

	// Doctor profile fields
	Specialization    *string `json:"specialization,omitempty"`
	MCINumber         *string `json:"mciNumber,omitempty"`
	ExperienceYears   *int    `json:"experienceYears,omitempty"`
	IsProfileApproved bool    `json:"isProfileApproved"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var validRoles = map[string]bool{
	"patient": true,
	"doctor":  true,
	"admin":   true,
}
