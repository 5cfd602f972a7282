// Package registry implements the broker's in-memory endpoint table: the
// mapping from 64-bit rendezvous keys to published services and the claims
// that pair against them. It is the single owner of every Endpoint; every
// other component carries ids, never direct references, so that claims and
// publications can refer to each other without a cyclic ownership graph.
package registry

import (
	"sync"
	"time"
)

// Endpoint is the broker's record of one participant, either a published
// service (ServicePort >= 0) or a claim awaiting pairing (ServicePort == -1).
type Endpoint struct {
	ServiceAddrs   []string `json:"service_addrs"`
	ServicePort    int      `json:"service_port"`
	ServiceClaim   int64    `json:"service_claim"`
	InterfaceAddrs []string `json:"interface_addrs"`
	BindPort       int      `json:"bind_port"`
	Key            uint64   `json:"key"`
	ID             uint64   `json:"id"`
	ServiceID      uint64   `json:"service_id"`
	RootCA         string   `json:"root_ca,omitempty"`
	Ping           bool     `json:"ping"`
}

// IsClaim reports whether this Endpoint represents a claim rather than a
// publication.
func (e *Endpoint) IsClaim() bool { return e.ServicePort < 0 }

// DefaultTimeoutSeconds is the staleness threshold applied to an unrefreshed
// publication claim when none is configured explicitly.
const DefaultTimeoutSeconds = 60

// State is the broker's registry of publications and claims, keyed by the
// rendezvous key shared out-of-band between a publisher and its claimants.
//
// Invariants:
//   - every stored Endpoint has a unique ID
//   - an Endpoint is in exactly one of publications[key] or claims[key]
//   - for every claim with ServiceID == s != 0, a publication with ID == s
//     exists and shares the claim's Key
type State struct {
	mu             sync.Mutex
	publications   map[uint64][]*Endpoint
	claims         map[uint64][]*Endpoint
	byID           map[uint64]*Endpoint
	seq            uint64
	timeoutSeconds int64

	// now is overridable in tests; defaults to the wall clock.
	now func() int64
}

// New creates an empty registry with the given claim staleness timeout.
func New(timeoutSeconds int64) *State {
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultTimeoutSeconds
	}
	return &State{
		publications:   make(map[uint64][]*Endpoint),
		claims:         make(map[uint64][]*Endpoint),
		byID:           make(map[uint64]*Endpoint),
		seq:            1,
		timeoutSeconds: timeoutSeconds,
		now:            func() int64 { return time.Now().Unix() },
	}
}

// Add assigns the next id to p, stores it under the publication or claim
// table according to p.ServicePort, and returns the assigned id.
func (s *State) Add(p *Endpoint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.seq
	s.seq++

	if p.IsClaim() {
		s.claims[p.Key] = append(s.claims[p.Key], p)
	} else {
		s.publications[p.Key] = append(s.publications[p.Key], p)
	}
	s.byID[p.ID] = p
	return p.ID
}

// PairClaim scans the publications registered under key for the first one
// eligible to be claimed — unclaimed (ServiceClaim == 0) or claimed longer
// ago than timeoutSeconds — and binds it to claimID. Insertion order is
// preserved, so the earliest-registered eligible publication wins ties.
//
// Returns the matched publication and true, or nil and false if none is
// eligible right now.
func (s *State) PairClaim(claimID, key uint64) (*Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, pub := range s.publications[key] {
		if pub.ServiceClaim == 0 || pub.ServiceClaim < now-s.timeoutSeconds {
			pub.ServiceClaim = now
			if claim, ok := s.byID[claimID]; ok {
				claim.ServiceID = pub.ID
			}
			return pub, true
		}
	}
	return nil, false
}

// FindPublication looks up a publication by id.
func (s *State) FindPublication(id uint64) (*Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok || e.IsClaim() {
		return nil, false
	}
	return e, true
}

// FindClaim looks up a claim by id.
func (s *State) FindClaim(id uint64) (*Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok || !e.IsClaim() {
		return nil, false
	}
	return e, true
}

// FindClaimByKey returns a claim registered under key, preferring one that
// is already paired (ServiceID != 0) so COL/MSG relay has a publication to
// target. Falls back to the first claim under key if none are paired yet.
func (s *State) FindClaimByKey(key uint64) (*Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.claims[key]
	if len(list) == 0 {
		return nil, false
	}
	for _, c := range list {
		if c.ServiceID != 0 {
			return c, true
		}
	}
	return list[0], true
}

// Remove deletes the endpoint with the given id. If it was a publication,
// every claim that had paired against it becomes unpaired (ServiceID = 0).
func (s *State) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)

	if e.IsClaim() {
		s.claims[e.Key] = removeByID(s.claims[e.Key], id)
		return
	}

	s.publications[e.Key] = removeByID(s.publications[e.Key], id)
	for _, c := range s.claims[e.Key] {
		if c.ServiceID == id {
			c.ServiceID = 0
		}
	}
}

func removeByID(list []*Endpoint, id uint64) []*Endpoint {
	out := list[:0]
	for _, e := range list {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// HeartbeatTarget describes one endpoint admissible for a heartbeat probe.
type HeartbeatTarget struct {
	ID       uint64
	Key      uint64
	DialAddr string
	BindPort int
	RootCA   string
}

// SnapshotForHeartbeat returns the dial targets for every currently
// registered endpoint, publications and claims alike — both sides of a pair
// carry their own heartbeat session back to the broker.
func (s *State) SnapshotForHeartbeat() []HeartbeatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := make([]HeartbeatTarget, 0, len(s.byID))
	for _, e := range s.byID {
		addr := ""
		if len(e.InterfaceAddrs) > 0 {
			addr = e.InterfaceAddrs[0]
		}
		targets = append(targets, HeartbeatTarget{
			ID:       e.ID,
			Key:      e.Key,
			DialAddr: addr,
			BindPort: e.BindPort,
			RootCA:   e.RootCA,
		})
	}
	return targets
}

// SetClock overrides the registry's notion of "now", for deterministic
// tests of claim-staleness eligibility.
func (s *State) SetClock(now func() int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
