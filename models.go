package accounts

import (
	"time"

	"github.com/uptrace/bun"
)

// AccountState is the lifecycle state of a user account.
type AccountState = string

const (
	// StateActive is the only state that can authenticate.
	StateActive AccountState = "active"
	// StateSuspended blocks authentication, optionally until a deadline.
	StateSuspended AccountState = "suspended"
	// StateDisabled is terminal unless forced back by an operator.
	StateDisabled AccountState = "disabled"
)

// User is the account model.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64           `bun:"id,pk,autoincrement" json:"id,omitempty"`
	Name          string          `bun:"name,notnull" json:"name,omitempty"`
	Username      string          `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string          `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string          `bun:"password_hash,notnull" json:"-"`
	BirthDate     time.Time       `bun:"birth_date" json:"birth_date,omitempty"`
	State         AccountState    `bun:"state,notnull,default:'active'" json:"state,omitempty"`
	StateUntil    *time.Time      `bun:"state_until,nullzero" json:"state_until,omitempty"`
	TierID        int64           `bun:"tier_id,notnull" json:"tier_id,omitempty"`
	Tier          *PermissionTier `bun:"rel:belongs-to,join:tier_id=id" json:"tier,omitempty"`
	CreatedAt     *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureState normalizes a missing state to active.
func (u *User) EnsureState() {
	if u != nil && u.State == "" {
		u.State = StateActive
	}
}

// TierName returns the resolved tier name, falling back to the lowest tier.
func (u *User) TierName() string {
	if u == nil || u.Tier == nil || u.Tier.Name == "" {
		return TierReader
	}
	return u.Tier.Name
}

// SuspensionLapsed reports whether a suspension deadline has passed.
func (u *User) SuspensionLapsed(now time.Time) bool {
	if u == nil || u.State != StateSuspended || u.StateUntil == nil {
		return false
	}
	return now.After(*u.StateUntil)
}

// PermissionTier is immutable reference data mapping tier names to ids.
type PermissionTier struct {
	bun.BaseModel `bun:"table:permission_tiers,alias:tier"`
	ID            int64  `bun:"id,pk,autoincrement" json:"id,omitempty"`
	Name          string `bun:"name,notnull,unique" json:"name,omitempty"`
}

// PasswordRecovery is the single recovery slot per account. Token and
// ExpiresAt are cleared together after a successful redeem; an expired row is
// left in place for the next issuance to overwrite.
type PasswordRecovery struct {
	bun.BaseModel `bun:"table:password_recoveries,alias:pwrc"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UserID        int64      `bun:"user_id,notnull,unique" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token         *string    `bun:"token,nullzero" json:"-"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Redeemable reports whether the slot still holds a live token.
func (r *PasswordRecovery) Redeemable(now time.Time) bool {
	if r == nil || r.Token == nil || r.ExpiresAt == nil {
		return false
	}
	return now.Before(*r.ExpiresAt)
}

// ActivityRecord is an append-only audit row. The core only ever writes these.
type ActivityRecord struct {
	bun.BaseModel `bun:"table:activity_log,alias:act"`
	ID            int64          `bun:"id,pk,autoincrement" json:"id,omitempty"`
	EventType     string         `bun:"event_type,notnull" json:"event_type,omitempty"`
	ActorType     string         `bun:"actor_type,notnull" json:"actor_type,omitempty"`
	ActorID       *int64         `bun:"actor_id,nullzero" json:"actor_id,omitempty"`
	UserID        *int64         `bun:"user_id,nullzero" json:"user_id,omitempty"`
	Identifier    string         `bun:"identifier" json:"identifier,omitempty"`
	Success       bool           `bun:"success,notnull" json:"success"`
	Error         string         `bun:"error" json:"error,omitempty"`
	Metadata      map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull,default:current_timestamp" json:"occurred_at,omitempty"`
}
