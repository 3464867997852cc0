package store

import (
	"sort"

	"github.com/AudricHarris/Z-Chat/internal/models"
)

// ProposeOutcome reports how a friend request was resolved.
type ProposeOutcome int

const (
	// ProposePending means the request was recorded and awaits a decision.
	ProposePending ProposeOutcome = iota
	// ProposeAutoAccepted means an opposite-direction request already
	// existed, so both were resolved into an immediate friendship.
	ProposeAutoAccepted
)

// Graph is the in-memory social graph: per-user friend lists, incoming
// pending requests and profile pictures. Friendship edges are kept symmetric
// on every mutation, and every mutation upserts the changed user records
// through the Gateway. Callers are expected to serialize access (the
// dispatcher runs one command at a time).
type Graph struct {
	gw       *Gateway
	friends  map[string][]string
	pending  map[string][]string
	profiles map[string]string
}

// NewGraph creates an empty social graph backed by the given gateway.
func NewGraph(gw *Gateway) *Graph {
	return &Graph{
		gw:       gw,
		friends:  make(map[string][]string),
		pending:  make(map[string][]string),
		profiles: make(map[string]string),
	}
}

// Load seeds the graph from persisted user records.
func (g *Graph) Load(users []models.User) {
	for _, user := range users {
		g.friends[user.Username] = append([]string(nil), user.Friends...)
		g.pending[user.Username] = append([]string(nil), user.PendingRequests...)
		g.profiles[user.Username] = user.ProfilePic
	}
}

// EnsureUser initializes the lists for a user on registration and records
// their profile picture, then persists the record.
func (g *Graph) EnsureUser(username, profilePic string) {
	if _, ok := g.friends[username]; !ok {
		g.friends[username] = []string{}
	}
	if _, ok := g.pending[username]; !ok {
		g.pending[username] = []string{}
	}
	if profilePic == "" {
		profilePic = models.DefaultProfilePic
	}
	g.profiles[username] = profilePic
	g.persist(username)
}

// KnownUser reports whether the username has ever registered.
func (g *Graph) KnownUser(username string) bool {
	_, ok := g.friends[username]
	return ok
}

// ProfilePic returns the stored picture for a user, or the default.
func (g *Graph) ProfilePic(username string) string {
	if pic, ok := g.profiles[username]; ok && pic != "" {
		return pic
	}
	return models.DefaultProfilePic
}

// Friends returns a copy of the user's friend list.
func (g *Graph) Friends(username string) []string {
	return append([]string(nil), g.friends[username]...)
}

// Pending returns a copy of the user's incoming pending requests.
func (g *Graph) Pending(username string) []string {
	return append([]string(nil), g.pending[username]...)
}

// Propose records a friend request from one user to another.
//
// If the target already has a pending request from the sender, or the two are
// already friends, it returns ErrAlreadyRelated without changing state. If
// the sender has a pending request *from* the target (both asked), the two
// requests collapse into an immediate mutual friendship and the outcome is
// ProposeAutoAccepted. Otherwise the request lands in the target's pending
// list and the outcome is ProposePending.
func (g *Graph) Propose(from, to string) (ProposeOutcome, error) {
	if contains(g.pending[to], from) || contains(g.friends[from], to) {
		return 0, ErrAlreadyRelated
	}

	if contains(g.pending[from], to) {
		g.addEdge(from, to)
		g.pending[from] = remove(g.pending[from], to)
		g.persist(from, to)
		return ProposeAutoAccepted, nil
	}

	g.pending[to] = append(g.pending[to], from)
	g.persist(to)
	return ProposePending, nil
}

// Accept resolves a pending request from requester into a mutual friendship.
func (g *Graph) Accept(username, requester string) error {
	if !contains(g.pending[username], requester) {
		return ErrNoPendingRequest
	}
	g.addEdge(username, requester)
	g.pending[username] = remove(g.pending[username], requester)
	g.persist(username, requester)
	return nil
}

// Reject drops a pending request from requester without creating an edge.
func (g *Graph) Reject(username, requester string) error {
	if !contains(g.pending[username], requester) {
		return ErrNoPendingRequest
	}
	g.pending[username] = remove(g.pending[username], requester)
	g.persist(username)
	return nil
}

// Remove deletes the friendship edge between the two users from both sides.
// Removing a non-existent edge is a no-op; pending requests for other pairs
// are never touched.
func (g *Graph) Remove(username, friend string) {
	g.friends[username] = remove(g.friends[username], friend)
	g.friends[friend] = remove(g.friends[friend], username)
	g.persist(username, friend)
}

// Usernames returns every known username in sorted order.
func (g *Graph) Usernames() []string {
	names := make([]string, 0, len(g.friends))
	for name := range g.friends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UserRecord builds the persistable record for a user.
func (g *Graph) UserRecord(username string) models.User {
	return models.User{
		Username:        username,
		ProfilePic:      g.ProfilePic(username),
		Friends:         g.Friends(username),
		PendingRequests: g.Pending(username),
	}
}

func (g *Graph) addEdge(a, b string) {
	if !contains(g.friends[a], b) {
		g.friends[a] = append(g.friends[a], b)
	}
	if !contains(g.friends[b], a) {
		g.friends[b] = append(g.friends[b], a)
	}
}

func (g *Graph) persist(usernames ...string) {
	for _, name := range usernames {
		g.gw.UpsertUser(g.UserRecord(name))
	}
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func remove(list []string, item string) []string {
	out := list[:0]
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}
