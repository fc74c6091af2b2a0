package entity

import "time"

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

type User struct {
	ID          string `json:"id" firestore:"id"`
	DisplayName string `json:"displayName" firestore:"displayName"`
	Email       string `json:"email,omitempty" firestore:"email,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty" firestore:"photoURL,omitempty"`
	Role        string `json:"role" firestore:"role"`
	Specialty   string `json:"specialty,omitempty" firestore:"specialty,omitempty"`
	DOB         string `json:"dob,omitempty" firestore:"dob,omitempty"`

	IsOnline   bool      `json:"isOnline" firestore:"isOnline"`
	LastActive time.Time `json:"lastActive" firestore:"lastActive"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Detail snapshots the profile fields stored on a conversation.
func (u *User) Detail() ParticipantDetail {
	return ParticipantDetail{
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Role:        u.Role,
		Specialty:   u.Specialty,
		DOB:         u.DOB,
	}
}

type Presence struct {
	UserID     string    `json:"userId"`
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive"`
}

func (u *User) Presence() Presence {
	return Presence{UserID: u.ID, IsOnline: u.IsOnline, LastActive: u.LastActive}
}
