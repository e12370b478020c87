package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	FALSE dbBool = iota
	TRUE
)

type dbBool uint

// Account is a local user: an Actor with host = null in spec.md §3 terms.
type Account struct {
	Id             uuid.UUID
	Username       string
	Publickey      string
	CreatedAt      time.Time
	FirstTimeLogin dbBool
	WebPublicKey   string
	WebPrivateKey  string
	// ActivityPub fields
	DisplayName string
	Summary     string
	AvatarURL   string
	// Locked marks the account as manually-approves-followers: a remote
	// Follow creates a FollowRequest instead of a FollowEdge until the
	// owner calls ApproveFollowRequestWithDeps.
	Locked bool
	// Admin fields
	IsAdmin bool
	Muted   bool
	Banned  bool
	// Connection tracking
	LastIP string
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tPublickey: %s \n\tCREATED_AT: %s)", acc.Id, acc.Username, acc.Publickey, acc.CreatedAt)
}

// Terms and Conditions
type TermsAndConditions struct {
	Id        int
	Content   string
	UpdatedAt time.Time
}

type UserTermsAcceptance struct {
	Id         int
	UserId     uuid.UUID
	TermsId    int
	AcceptedAt time.Time
}
