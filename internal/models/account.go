package models

import (
	"fmt"
	"time"
)

// Account is a platform identity connected through OAuth.
//
// (Platform, PlatformAccountID) is unique: reconnecting the same identity updates the existing row.
type Account struct {
	ID                string
	Sequence          int
	UserID            string
	Platform          PlatformType
	PlatformAccountID string
	AccountName       string
	AccessToken       string
	RefreshToken      string
	TokenExpiry       time.Time
	Scope             string
	Profile           Profile
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a *Account) GetID() string {
	return a.ID
}

func (a *Account) SetID(id string) {
	a.ID = id
}

func (a *Account) Touched() time.Time {
	return a.UpdatedAt
}

// Validate checks the fields required to store an account.
func (a *Account) Validate() error {
	switch {
	case a.UserID == "":
		return fmt.Errorf("user id is required")
	case a.Platform == "":
		return fmt.Errorf("platform is required")
	case a.PlatformAccountID == "":
		return fmt.Errorf("platform account id is required")
	case a.AccessToken == "":
		return fmt.Errorf("access token is required")
	}
	if a.Profile != nil && a.Profile.Platform() != a.Platform {
		return fmt.Errorf("profile platform %s does not match account platform %s", a.Profile.Platform(), a.Platform)
	}
	return nil
}

// Display returns the normalized profile, falling back to the stored account name.
func (a *Account) Display() DisplayProfile {
	if a.Profile == nil {
		return DisplayProfile{Name: a.AccountName}
	}
	d := a.Profile.Normalize()
	if d.Name == "" {
		d.Name = a.AccountName
	}
	return d
}

// TokenFields are the credential columns written on connect and on refresh.
type TokenFields struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	Scope        string
}
