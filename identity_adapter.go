package accounts

// UserIdentity adapts a User into the Identity interface for token issuance.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

func (u UserIdentity) ID() int64 {
	if u.user == nil {
		return 0
	}
	return u.user.ID
}

func (u UserIdentity) Username() string {
	if u.user == nil {
		return ""
	}
	return u.user.Username
}

func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

func (u UserIdentity) Name() string {
	if u.user == nil {
		return ""
	}
	return u.user.Name
}

func (u UserIdentity) Tier() string {
	if u.user == nil {
		return ""
	}
	return u.user.TierName()
}

// State returns the user's lifecycle state.
func (u UserIdentity) State() AccountState {
	if u.user == nil {
		return ""
	}
	u.user.EnsureState()
	return u.user.State
}

var _ Identity = UserIdentity{}
