package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLobbyCapacity is the number of player seats in a lobby
const DefaultLobbyCapacity = 2

// LobbyState represents where a lobby is in its lifecycle
type LobbyState string

const (
	LobbyStateOpen     LobbyState = "open"
	LobbyStateFull     LobbyState = "full"
	LobbyStateStarting LobbyState = "starting"
	LobbyStateActive   LobbyState = "active"
	LobbyStateClosed   LobbyState = "closed"
)

// Lobby represents a pre-match grouping of players and spectators.
// Players[0] is the creator. RegionAddresses is parallel to Players.
type Lobby struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Password        string      `json:"password,omitempty"`
	Players         []int64     `json:"players"`
	Spectators      []int64     `json:"spectators"`
	RegionAddresses []string    `json:"region_addresses"`
	Capacity        int         `json:"capacity"`
	State           LobbyState  `json:"state"`
	Deployment      *Deployment `json:"deployment,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewLobby builds an Open lobby seated with its creator
func NewLobby(id int64, creatorID int64, name, password, regionAddress string, capacity int, now time.Time) *Lobby {
	if capacity <= 0 {
		capacity = DefaultLobbyCapacity
	}
	l := &Lobby{
		ID:              id,
		Name:            name,
		Password:        password,
		Players:         []int64{creatorID},
		Spectators:      []int64{},
		RegionAddresses: []string{regionAddress},
		Capacity:        capacity,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	l.RecomputeOccupancy()
	return l
}

// CreatorID returns the player seated first, or 0 for an empty lobby
func (l *Lobby) CreatorID() int64 {
	if len(l.Players) == 0 {
		return 0
	}
	return l.Players[0]
}

// Occupants is the number of seated players. Spectators do not take seats.
func (l *Lobby) Occupants() int {
	return len(l.Players)
}

// IsEmpty reports whether nobody, player or spectator, is left in the lobby
func (l *Lobby) IsEmpty() bool {
	return len(l.Players) == 0 && len(l.Spectators) == 0
}

// HasPassword reports whether joining requires a password
func (l *Lobby) HasPassword() bool {
	return l.Password != ""
}

// CheckPassword compares in plaintext. Lobby passwords are a session convenience, not a secret.
func (l *Lobby) CheckPassword(password string) bool {
	return l.Password == "" || l.Password == password
}

// IsPlayer reports whether playerID holds a seat
func (l *Lobby) IsPlayer(playerID int64) bool {
	return indexOf(l.Players, playerID) >= 0
}

// IsSpectator reports whether playerID is watching
func (l *Lobby) IsSpectator(playerID int64) bool {
	return indexOf(l.Spectators, playerID) >= 0
}

// IsMember reports whether playerID is a player or a spectator
func (l *Lobby) IsMember(playerID int64) bool {
	return l.IsPlayer(playerID) || l.IsSpectator(playerID)
}

// AddPlayer seats a player along with their region address
func (l *Lobby) AddPlayer(playerID int64, regionAddress string) {
	l.Players = append(l.Players, playerID)
	l.RegionAddresses = append(l.RegionAddresses, regionAddress)
}

// AddSpectator adds a spectator once
func (l *Lobby) AddSpectator(playerID int64) {
	if l.IsSpectator(playerID) {
		return
	}
	l.Spectators = append(l.Spectators, playerID)
}

// Remove drops playerID from players (with its region address) or spectators.
// It reports whether anything was removed.
func (l *Lobby) Remove(playerID int64) bool {
	if i := indexOf(l.Players, playerID); i >= 0 {
		l.Players = append(l.Players[:i:i], l.Players[i+1:]...)
		if i < len(l.RegionAddresses) {
			l.RegionAddresses = append(l.RegionAddresses[:i:i], l.RegionAddresses[i+1:]...)
		}
		return true
	}
	if i := indexOf(l.Spectators, playerID); i >= 0 {
		l.Spectators = append(l.Spectators[:i:i], l.Spectators[i+1:]...)
		return true
	}
	return false
}

// RecomputeOccupancy moves an Open or Full lobby to the state its seat count implies.
// Starting, Active and Closed are left alone.
func (l *Lobby) RecomputeOccupancy() {
	switch l.State {
	case "", LobbyStateOpen, LobbyStateFull:
		if l.Occupants() >= l.Capacity {
			l.State = LobbyStateFull
		} else {
			l.State = LobbyStateOpen
		}
	}
}

// ServerAddress returns host:port of a running deployment
func (l *Lobby) ServerAddress() string {
	if l.Deployment == nil || l.Deployment.Status != DeploymentStatusRunning {
		return ""
	}
	return l.Deployment.Address()
}

// MatchesFilter is a case-insensitive substring match on the lobby name
func (l *Lobby) MatchesFilter(filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(l.Name), strings.ToLower(filter))
}

// Clone returns a deep copy so callers can mutate without touching stored state
func (l *Lobby) Clone() *Lobby {
	if l == nil {
		return nil
	}
	c := *l
	c.Players = append([]int64{}, l.Players...)
	c.Spectators = append([]int64{}, l.Spectators...)
	c.RegionAddresses = append([]string{}, l.RegionAddresses...)
	if l.Deployment != nil {
		d := *l.Deployment
		c.Deployment = &d
	}
	return &c
}

// DeploymentStatus is the provisioning state of a game server
type DeploymentStatus string

const (
	DeploymentStatusRequesting DeploymentStatus = "requesting"
	DeploymentStatusPending    DeploymentStatus = "pending"
	DeploymentStatusRunning    DeploymentStatus = "running"
	DeploymentStatusFailed     DeploymentStatus = "failed"
	DeploymentStatusStopped    DeploymentStatus = "stopped"
)

// Deployment is an externally provisioned game server bound to one lobby
type Deployment struct {
	RequestID string           `json:"request_id"`
	Hostname  string           `json:"hostname,omitempty"`
	Port      int              `json:"port,omitempty"`
	Status    DeploymentStatus `json:"status"`
}

// Address formats the deployment as host:port
func (d *Deployment) Address() string {
	return fmt.Sprintf("%s:%d", d.Hostname, d.Port)
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
