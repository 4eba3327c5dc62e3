package types

// Actor is whoever performs an operation: an authenticated user or an
// anonymous visitor. The zero value is anonymous.
type Actor struct {
	UserID int
}

// Anonymous returns the actor for an unauthenticated visitor.
func Anonymous() Actor {
	return Actor{}
}

// AuthenticatedAs returns the actor for the given user id.
func AuthenticatedAs(userID int) Actor {
	return Actor{UserID: userID}
}

// Authenticated reports whether the actor carries a user identity.
func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

// Is reports whether the actor is the authenticated user with the given id.
func (a Actor) Is(userID int) bool {
	return a.Authenticated() && a.UserID == userID
}
