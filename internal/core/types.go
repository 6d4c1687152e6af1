package core

import (
	"time"

	"engagement/pkg/domain"
)

type (
	Role          = domain.Role
	Project       = domain.Project
	Update        = domain.Update
	UpdateType    = domain.UpdateType
	Caller        = domain.Caller
	AccessRequest = domain.AccessRequest
	Rule          = domain.Rule
	RulesEngine   = domain.RulesEngine
	Result        = domain.Result
	Violation     = domain.Violation
	Severity      = domain.Severity
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	RoleOwner         = domain.RoleOwner
	RoleAdministrator = domain.RoleAdministrator
	RoleAuthor        = domain.RoleAuthor
	RoleMember        = domain.RoleMember
)

// Collection names.
const (
	CollectionProjects = domain.CollectionProjects
	CollectionUpdates  = domain.CollectionUpdates
	// CollectionTokens holds secret token records keyed by the token value.
	CollectionTokens = "_api_tokens"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

func systemClock() Clock { return ClockFunc(func() time.Time { return time.Now().UTC() }) }
