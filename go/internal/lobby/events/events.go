package events

import "fmt"

// Event types shared between the lobby and gateway packages

// StatusCode identifies the kind of lobby notification pushed to clients
type StatusCode int

const (
	StatusHeartbeat          StatusCode = 100
	StatusGameIsStarting     StatusCode = 102
	StatusGameStarted        StatusCode = 200
	StatusPlayerConnected    StatusCode = 201
	StatusPlayerDisconnected StatusCode = 202
	StatusLobbyClosed        StatusCode = 203
	StatusInvalidRequest     StatusCode = 400
	StatusLobbyNotFound      StatusCode = 404
	StatusProvisioningError  StatusCode = 500
)

// String returns the event name for logging
func (c StatusCode) String() string {
	switch c {
	case StatusHeartbeat:
		return "Heartbeat"
	case StatusGameIsStarting:
		return "GameIsStarting"
	case StatusGameStarted:
		return "GameStarted"
	case StatusPlayerConnected:
		return "PlayerConnected"
	case StatusPlayerDisconnected:
		return "PlayerDisconnected"
	case StatusLobbyClosed:
		return "LobbyClosed"
	case StatusInvalidRequest:
		return "InvalidRequest"
	case StatusLobbyNotFound:
		return "LobbyNotFound"
	case StatusProvisioningError:
		return "ProvisioningError"
	default:
		return fmt.Sprintf("Status(%d)", int(c))
	}
}

// Event is the wire format pushed to every channel of a lobby
type Event struct {
	StatusCode StatusCode `json:"statusCode"`
	Message    string     `json:"message"`
}

func Heartbeat(message string) Event {
	return Event{StatusCode: StatusHeartbeat, Message: message}
}

func GameIsStarting() Event {
	return Event{StatusCode: StatusGameIsStarting, Message: "Game is starting..."}
}

// GameStarted carries the host:port of the game server
func GameStarted(address string) Event {
	return Event{StatusCode: StatusGameStarted, Message: address}
}

func PlayerJoined(playerID int64) Event {
	return Event{StatusCode: StatusPlayerConnected, Message: fmt.Sprintf("%d has joined the lobby as a player.", playerID)}
}

func SpectatorJoined(playerID int64) Event {
	return Event{StatusCode: StatusPlayerConnected, Message: fmt.Sprintf("%d has joined the lobby as a spectator.", playerID)}
}

func PlayerLeft(playerID int64) Event {
	return Event{StatusCode: StatusPlayerDisconnected, Message: fmt.Sprintf("%d has left the lobby", playerID)}
}

func LobbyClosed() Event {
	return Event{StatusCode: StatusLobbyClosed, Message: "Lobby has been closed."}
}

func InvalidRequest(reason string) Event {
	return Event{StatusCode: StatusInvalidRequest, Message: reason}
}

func LobbyNotFound() Event {
	return Event{StatusCode: StatusLobbyNotFound, Message: "Lobby not found"}
}

func ProvisioningError() Event {
	return Event{StatusCode: StatusProvisioningError, Message: "Failed to start the game"}
}
