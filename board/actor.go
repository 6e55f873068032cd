package board

// Actor carries the identity and capability predicates of the user driving
// a gesture. Guests can browse the board but cannot mutate it; every
// mutating entry point checks the relevant predicate before touching
// state.
type Actor struct {
	UserID string
	Guest  bool
}

func (a Actor) CanCreate() bool { return !a.Guest }
func (a Actor) CanEdit() bool   { return !a.Guest }
func (a Actor) CanDelete() bool { return !a.Guest }
