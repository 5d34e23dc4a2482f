package lobby

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the lobby app wraps exactly one of these.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid request")
	ErrUpstream = errors.New("upstream failure")
	ErrTimeout  = errors.New("timeout")
)

var (
	ErrLobbyNotFound      = fmt.Errorf("%w: lobby not found", ErrNotFound)
	ErrLobbyFull          = fmt.Errorf("%w: lobby is full", ErrConflict)
	ErrBadPassword        = fmt.Errorf("%w: incorrect password", ErrConflict)
	ErrAlreadyInLobby     = fmt.Errorf("%w: player already occupies another lobby", ErrConflict)
	ErrWrongOccupancy     = fmt.Errorf("%w: lobby must be full to start the game", ErrConflict)
	ErrAlreadyStarted     = fmt.Errorf("%w: game is already starting or running", ErrConflict)
	ErrGameNotStarted     = fmt.Errorf("%w: lobby has no game in progress", ErrConflict)
	ErrDeploymentMismatch = fmt.Errorf("%w: request id does not match the lobby deployment", ErrConflict)
	ErrRegionLookup       = fmt.Errorf("%w: failed to retrieve player's region address", ErrUpstream)
	ErrProvisioningSubmit = fmt.Errorf("%w: failed to request a game server", ErrUpstream)
	ErrProvisioningFailed = fmt.Errorf("%w: game server did not start in time", ErrTimeout)
	ErrRatingUpdate       = fmt.Errorf("%w: failed to update player rating", ErrUpstream)
	ErrStore              = errors.New("lobby store failure")
)
