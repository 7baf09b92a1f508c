// Package accessguard maps a resolved lifecycle state and a route
// requirement to an allow/redirect decision. It is the single authority
// for access decisions; no other component re-derives state.
package accessguard

import (
	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
)

// Requirement enumerates what a route demands of the caller's account.
type Requirement struct {
	kind   requirementKind
	states []accountdomain.LifecycleState
}

type requirementKind int

const (
	kindNone requirementKind = iota
	kindConfirmedEmail
	kindActiveSubscription
	kindAllowList
)

var (
	RequireNone               = Requirement{kind: kindNone}
	RequireConfirmedEmail     = Requirement{kind: kindConfirmedEmail}
	RequireActiveSubscription = Requirement{kind: kindActiveSubscription}
)

// RequireStates allows exactly the listed lifecycle states.
func RequireStates(states ...accountdomain.LifecycleState) Requirement {
	return Requirement{kind: kindAllowList, states: states}
}

const (
	RedirectVerifyEmail = "/verify-email"
	RedirectPricing     = "/pricing"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
}

func allow() Decision { return Decision{Allow: true} }
func redirect(target string) Decision { return Decision{Redirect: target} }

// Authorize is a pure mapping with no I/O. An unconfirmed email redirects
// to verification for any requirement beyond none; a confirmed account
// without a subscription redirects to pricing only when a subscription is
// required; an active account always passes.
func Authorize(state accountdomain.LifecycleState, req Requirement) Decision {
	switch req.kind {
	case kindNone:
		return allow()
	case kindConfirmedEmail:
		if state == accountdomain.StatePendingEmail {
			return redirect(RedirectVerifyEmail)
		}
		return allow()
	case kindActiveSubscription:
		switch state {
		case accountdomain.StatePendingEmail:
			return redirect(RedirectVerifyEmail)
		case accountdomain.StatePendingSubscription:
			return redirect(RedirectPricing)
		default:
			return allow()
		}
	case kindAllowList:
		for _, allowed := range req.states {
			if state == allowed {
				return allow()
			}
		}
		if state == accountdomain.StatePendingEmail {
			return redirect(RedirectVerifyEmail)
		}
		return redirect(RedirectPricing)
	default:
		return redirect(RedirectVerifyEmail)
	}
}
