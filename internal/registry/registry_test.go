package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicPair(t *testing.T) {
	s := New(60)

	pubID := s.Add(&Endpoint{
		Key:            42,
		ServicePort:    9000,
		ServiceAddrs:   []string{"10.0.0.2"},
		BindPort:       9001,
		InterfaceAddrs: []string{"10.0.0.2"},
	})
	require.Equal(t, uint64(1), pubID)

	claimID := s.Add(&Endpoint{
		Key:          42,
		ServicePort:  -1,
		ServiceAddrs: []string{"10.0.0.3"},
		BindPort:     9101,
	})

	matched, ok := s.PairClaim(claimID, 42)
	require.True(t, ok)
	assert.Equal(t, pubID, matched.ID)

	claim, ok := s.FindClaim(claimID)
	require.True(t, ok)
	assert.Equal(t, pubID, claim.ServiceID)
}

func TestClaimBeforePublishReturnsNoMatch(t *testing.T) {
	s := New(60)
	claimID := s.Add(&Endpoint{Key: 7, ServicePort: -1})

	_, ok := s.PairClaim(claimID, 7)
	assert.False(t, ok)
}

func TestRemovePublicationUnpairsClaims(t *testing.T) {
	s := New(60)
	pubID := s.Add(&Endpoint{Key: 5, ServicePort: 9000})
	claimID := s.Add(&Endpoint{Key: 5, ServicePort: -1})

	_, ok := s.PairClaim(claimID, 5)
	require.True(t, ok)

	s.Remove(pubID)

	claim, ok := s.FindClaim(claimID)
	require.True(t, ok)
	assert.Equal(t, uint64(0), claim.ServiceID)

	_, ok = s.FindPublication(pubID)
	assert.False(t, ok)
}

func TestRePairPrefersEarliestThenFallsBackAfterEviction(t *testing.T) {
	s := New(60)
	pub1 := s.Add(&Endpoint{Key: 5, ServicePort: 9000})
	pub2 := s.Add(&Endpoint{Key: 5, ServicePort: 9001})

	claimA := s.Add(&Endpoint{Key: 5, ServicePort: -1})
	matched, ok := s.PairClaim(claimA, 5)
	require.True(t, ok)
	assert.Equal(t, pub1, matched.ID)

	s.Remove(pub1)

	claimB := s.Add(&Endpoint{Key: 5, ServicePort: -1})
	matched, ok = s.PairClaim(claimB, 5)
	require.True(t, ok)
	assert.Equal(t, pub2, matched.ID)
}

func TestPairClaimEligibleWhenStale(t *testing.T) {
	s := New(60)
	var clock int64 = 1000
	s.SetClock(func() int64 { return clock })

	pubID := s.Add(&Endpoint{Key: 1, ServicePort: 9000})
	claimA := s.Add(&Endpoint{Key: 1, ServicePort: -1})
	_, ok := s.PairClaim(claimA, 1)
	require.True(t, ok)

	// Immediately re-claiming the same key finds nothing: the publication
	// was just claimed and isn't stale yet.
	claimB := s.Add(&Endpoint{Key: 1, ServicePort: -1})
	_, ok = s.PairClaim(claimB, 1)
	assert.False(t, ok)

	// After the timeout elapses the same publication becomes eligible again.
	clock += 61
	matched, ok := s.PairClaim(claimB, 1)
	require.True(t, ok)
	assert.Equal(t, pubID, matched.ID)
}

func TestIDsAreUniqueAndIncreasing(t *testing.T) {
	s := New(60)
	var last uint64
	for i := 0; i < 50; i++ {
		id := s.Add(&Endpoint{Key: uint64(i), ServicePort: 9000})
		assert.Greater(t, id, last)
		last = id
	}
}

func TestFindClaimByKeyPrefersPaired(t *testing.T) {
	s := New(60)
	pubID := s.Add(&Endpoint{Key: 9, ServicePort: 9000})

	unpairedClaim := s.Add(&Endpoint{Key: 9, ServicePort: -1})
	claim, ok := s.FindClaimByKey(9)
	require.True(t, ok)
	assert.Equal(t, unpairedClaim, claim.ID)

	pairedClaim := s.Add(&Endpoint{Key: 9, ServicePort: -1})
	_, ok = s.PairClaim(pairedClaim, 9)
	require.True(t, ok)

	claim, ok = s.FindClaimByKey(9)
	require.True(t, ok)
	assert.Equal(t, pairedClaim, claim.ID)
	assert.Equal(t, pubID, claim.ServiceID)
}

func TestSnapshotForHeartbeatIncludesAllEndpoints(t *testing.T) {
	s := New(60)
	s.Add(&Endpoint{Key: 1, ServicePort: 9000, InterfaceAddrs: []string{"10.0.0.1"}, BindPort: 9001})
	s.Add(&Endpoint{Key: 1, ServicePort: -1, InterfaceAddrs: []string{"10.0.0.2"}, BindPort: 9101})

	targets := s.SnapshotForHeartbeat()
	assert.Len(t, targets, 2)
}
