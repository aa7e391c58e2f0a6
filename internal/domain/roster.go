package domain

import "github.com/samber/lo"

// Roster is the set of known contacts with presence. Entries are keyed by
// username (never two for the same name) and keep insertion order so
// surfaces render a stable list.
type Roster struct {
	order  []string
	byName map[string]*User
}

func NewRoster() *Roster {
	return &Roster{byName: make(map[string]*User)}
}

func (r *Roster) Len() int { return len(r.order) }

func (r *Roster) Get(username string) (*User, bool) {
	u, ok := r.byName[username]
	return u, ok
}

func (r *Roster) insert(u *User) {
	if _, ok := r.byName[u.Username]; !ok {
		r.order = append(r.order, u.Username)
	}
	r.byName[u.Username] = u
}

// UpsertAll merges a contact list imported from an external source.
// Presence of already-known users is preserved; new entries start
// disconnected.
func (r *Roster) UpsertAll(contacts []User) {
	for _, c := range contacts {
		if c.Username == "" {
			continue
		}
		if existing, ok := r.byName[c.Username]; ok {
			if c.DisplayName != "" {
				existing.DisplayName = c.DisplayName
			}
			continue
		}
		u := c
		if u.Presence == "" {
			u.Presence = PresenceDisconnected
		}
		r.insert(&u)
	}
}

// Join marks a user present, adding it to the roster if unknown.
func (r *Roster) Join(username string) *User {
	u, ok := r.byName[username]
	if !ok {
		u = &User{Username: username}
		r.insert(u)
	}
	u.Presence = PresenceConnected
	return u
}

// Leave marks a user disconnected. Unknown usernames are ignored.
func (r *Roster) Leave(username string) {
	if u, ok := r.byName[username]; ok {
		u.Presence = PresenceDisconnected
	}
}

// Snapshot returns a copy of the roster in insertion order. With degraded
// set, every entry is reported disconnected regardless of its last-known
// presence (server reconnection in progress).
func (r *Roster) Snapshot(degraded bool) []User {
	return lo.Map(r.order, func(name string, _ int) User {
		u := *r.byName[name]
		if degraded {
			u.Presence = PresenceDisconnected
		}
		return u
	})
}

// Reset drops every entry, e.g. on sign-out.
func (r *Roster) Reset() {
	r.order = nil
	r.byName = make(map[string]*User)
}
