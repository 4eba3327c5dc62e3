// Package policy decides whether an actor may view or mutate a listing.
//
// Decisions are pure: they depend only on the actor, the listing as loaded
// from the store (nil when it does not exist) and the requested operation.
// Callers must not reveal Reason to the actor; every denial is reported the
// same way so that listing existence cannot be probed.
package policy

import "github.com/homefinder/apiserver/types"

// Operation is an action an actor requests on a listing.
type Operation string

const (
	OpView         Operation = "view"
	OpEdit         Operation = "edit"
	OpDelete       Operation = "delete"
	OpAttachImage  Operation = "attach-image"
	OpViewMessages Operation = "view-messages"
)

// Reason explains a decision for logs and tests.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotFound         Reason = "not_found"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonNotOwner         Reason = "not_owner"
	ReasonAlreadyPublished Reason = "already_published"
	ReasonUnknownOperation Reason = "unknown_operation"
)

// Decision is the outcome of CanAccess.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// CanAccess evaluates the listing access rules in order.
func CanAccess(actor types.Actor, listing *types.Listing, op Operation) Decision {
	if listing == nil {
		return deny(ReasonNotFound)
	}

	switch op {
	case OpView:
		if listing.Published {
			return allow()
		}
		return ownerOnly(actor, listing)
	case OpEdit, OpDelete, OpViewMessages:
		return ownerOnly(actor, listing)
	case OpAttachImage:
		if d := ownerOnly(actor, listing); !d.Allowed {
			return d
		}
		if listing.Published {
			return deny(ReasonAlreadyPublished)
		}
		return allow()
	default:
		return deny(ReasonUnknownOperation)
	}
}

func ownerOnly(actor types.Actor, listing *types.Listing) Decision {
	if !actor.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if !actor.Is(listing.OwnerID) {
		return deny(ReasonNotOwner)
	}
	return allow()
}
