package service

import "errors"

// Battle lifecycle errors
var (
	ErrBattleNotFound      = errors.New("battle not found")
	ErrInvalidTransition   = errors.New("invalid lifecycle transition")
	ErrInvalidPair         = errors.New("battle requires two distinct participants")
	ErrParticipantBusy     = errors.New("participant already in a live battle")
	ErrParticipantNotFound = errors.New("participant not found in catalog")
	ErrForbidden           = errors.New("only the creator may cancel a battle")
)

// Vote errors
var (
	ErrAlreadyVoted = errors.New("user already voted in this battle")
	ErrInvalidState = errors.New("battle is not accepting votes")
	ErrInvalidSide  = errors.New("side must be A or B")
)

// Infrastructure errors
var (
	ErrStorageUnavailable = errors.New("battle storage unavailable")
)
