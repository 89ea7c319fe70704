package moderation

import "errors"

var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamNameTaken      = errors.New("team name already taken")
	ErrMemberNotFound     = errors.New("team member not found")
	ErrAlreadyMember      = errors.New("user is already a team member")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrAlreadyInvited     = errors.New("email already invited")
	ErrEmailRegistered    = errors.New("email already registered")
)
