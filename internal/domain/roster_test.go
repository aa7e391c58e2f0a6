package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
)

func TestRosterUpsertAll(t *testing.T) {
	r := domain.NewRoster()
	r.UpsertAll([]domain.User{{Username: "bob"}, {Username: "bill"}})

	require.Equal(t, 2, r.Len())
	snap := r.Snapshot(false)
	assert.Equal(t, "bob", snap[0].Username)
	assert.Equal(t, "bill", snap[1].Username)
	assert.Equal(t, domain.PresenceDisconnected, snap[1].Presence)
}

func TestRosterNoDuplicates(t *testing.T) {
	r := domain.NewRoster()
	r.UpsertAll([]domain.User{{Username: "bob"}})
	r.UpsertAll([]domain.User{{Username: "bob", DisplayName: "Bob B."}})

	require.Equal(t, 1, r.Len())
	u, ok := r.Get("bob")
	require.True(t, ok)
	assert.Equal(t, "Bob B.", u.DisplayName)
}

func TestRosterUpsertKeepsPresence(t *testing.T) {
	r := domain.NewRoster()
	r.Join("bob")
	r.UpsertAll([]domain.User{{Username: "bob"}})

	u, _ := r.Get("bob")
	assert.Equal(t, domain.PresenceConnected, u.Presence)
}

func TestRosterJoinLeave(t *testing.T) {
	r := domain.NewRoster()
	u := r.Join("a@a.com")
	assert.Equal(t, domain.PresenceConnected, u.Presence)

	r.Leave("a@a.com")
	u, _ = r.Get("a@a.com")
	assert.Equal(t, domain.PresenceDisconnected, u.Presence)

	// unknown usernames are ignored
	r.Leave("nobody")
	assert.Equal(t, 1, r.Len())
}

func TestRosterSnapshotDegraded(t *testing.T) {
	r := domain.NewRoster()
	r.Join("bob")
	r.Join("bill")

	for _, u := range r.Snapshot(true) {
		assert.Equal(t, domain.PresenceDisconnected, u.Presence)
	}
	// the true last-known values are untouched
	u, _ := r.Get("bob")
	assert.Equal(t, domain.PresenceConnected, u.Presence)
}

func TestRosterReset(t *testing.T) {
	r := domain.NewRoster()
	r.Join("bob")
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot(false))
}

func TestUserValidation(t *testing.T) {
	_, err := domain.NewUser("")
	assert.ErrorIs(t, err, domain.ErrUsernameEmpty)

	u, err := domain.NewUser("florian")
	require.NoError(t, err)
	assert.True(t, u.SignedIn())

	u.Reset()
	assert.False(t, u.SignedIn())
	assert.Equal(t, domain.PresenceDisconnected, u.Presence)
}
