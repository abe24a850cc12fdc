package entity

import "time"

const StatusActive = "ACTIVE"

// Profile represents a row in the `user_profiles` table. It is provisioned on
// every successful login in the same transaction as the credential.
type Profile struct {
	ID          string    `db:"id" json:"id"`
	Subject     string    `db:"subject" json:"sub"`
	Email       string    `db:"email" json:"email"`
	Name        string    `db:"name" json:"name"`
	Scope       string    `db:"scope" json:"scope"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	LastLoginAt time.Time `db:"last_login_at" json:"last_login_at"`
}
