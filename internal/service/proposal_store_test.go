package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalStoreExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newProposalStore(10 * time.Minute)
	store.now = func() time.Time { return now }

	store.Save(rosterProposal{ID: "p-1", CreatedAt: now})
	_, ok := store.Get("p-1")
	require.True(t, ok)
	assert.Equal(t, now.Add(10*time.Minute), store.ExpiresAt(rosterProposal{CreatedAt: now}))

	now = now.Add(11 * time.Minute)
	_, ok = store.Get("p-1")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestProposalStorePurgesOnSave(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newProposalStore(time.Minute)
	store.now = func() time.Time { return now }

	store.Save(rosterProposal{ID: "old", CreatedAt: now})
	now = now.Add(2 * time.Minute)
	store.Save(rosterProposal{ID: "new", CreatedAt: now})

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("new")
	assert.True(t, ok)
}

func TestProposalStoreLenSkipsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newProposalStore(time.Minute)
	store.now = func() time.Time { return now }

	store.Save(rosterProposal{ID: "a", CreatedAt: now})
	store.Save(rosterProposal{ID: "b", CreatedAt: now.Add(30 * time.Second)})
	assert.Equal(t, 2, store.Len())

	now = now.Add(75 * time.Second)
	assert.Equal(t, 1, store.Len())
}
