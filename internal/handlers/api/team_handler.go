package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/moderation"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/spf13/cast"
)

type TeamHandler struct {
	teams *moderation.TeamService
}

func NewTeamHandler(teams *moderation.TeamService) *TeamHandler {
	return &TeamHandler{teams: teams}
}

type createTeamRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type updateTeamRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type addMemberRequest struct {
	UserID uint `json:"userId" validate:"required"`
	RoleID uint `json:"roleId" validate:"required"`
}

type inviteModeratorRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type acceptInvitationRequest struct {
	Token        string `json:"token" validate:"required"`
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"required,max=150"`
	Password     string `json:"password" validate:"required,min=8"`
	Organization string `json:"organization" validate:"max=255"`
	Relation     string `json:"relation" validate:"max=255"`
}

type membershipResponse struct {
	UserID   uint   `json:"userId"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	JoinedAt string `json:"joinedAt"`
}

func newMembershipResponse(m *model.TeamMembership) membershipResponse {
	resp := membershipResponse{
		UserID:   m.UserID,
		JoinedAt: m.JoinedAt.UTC().Format(time.RFC3339),
	}
	if m.User != nil {
		resp.FullName = m.User.FullName()
		resp.Email = m.User.Email
	}
	if m.Role != nil {
		resp.Role = m.Role.Code
	}
	return resp
}

func (h *TeamHandler) GetTeams(ctx *fiber.Ctx) error {
	teams, err := h.teams.ListTeams(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(teams))
}

func (h *TeamHandler) GetTeam(ctx *fiber.Ctx) error {
	team, err := h.teams.GetTeam(ctx.Context(), cast.ToUint(ctx.Params("id")))
	if errors.Is(err, moderation.ErrTeamNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Team not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(team))
}

func (h *TeamHandler) PostTeam(ctx *fiber.Ctx) error {
	var req createTeamRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	team, err := h.teams.CreateTeam(ctx.Context(), req.Name, req.Description)
	if errors.Is(err, moderation.ErrTeamNameTaken) {
		return fiber.NewError(fiber.StatusConflict, "Team name already taken")
	}
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(team))
}

func (h *TeamHandler) PatchTeam(ctx *fiber.Ctx) error {
	var req updateTeamRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	columns := map[string]interface{}{}
	if req.Name != nil {
		columns["name"] = *req.Name
	}
	if req.Description != nil {
		columns["description"] = *req.Description
	}
	if len(columns) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No fields to update")
	}
	err := h.teams.UpdateTeam(ctx.Context(), cast.ToUint(ctx.Params("id")), columns)
	switch {
	case errors.Is(err, moderation.ErrTeamNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Team not found")
	case errors.Is(err, moderation.ErrTeamNameTaken):
		return fiber.NewError(fiber.StatusConflict, "Team name already taken")
	case err != nil:
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Team updated"}))
}

func (h *TeamHandler) DeleteTeam(ctx *fiber.Ctx) error {
	err := h.teams.DeleteTeam(ctx.Context(), cast.ToUint(ctx.Params("id")))
	if errors.Is(err, moderation.ErrTeamNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Team not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Team deleted"}))
}

func (h *TeamHandler) GetMembers(ctx *fiber.Ctx) error {
	members, err := h.teams.ListMembers(ctx.Context(), cast.ToUint(ctx.Params("id")))
	if errors.Is(err, moderation.ErrTeamNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Team not found")
	}
	if err != nil {
		return err
	}
	resp := make([]membershipResponse, 0, len(members))
	for _, member := range members {
		resp = append(resp, newMembershipResponse(member))
	}
	return ctx.JSON(NewDataResponse(resp))
}

func (h *TeamHandler) PostMember(ctx *fiber.Ctx) error {
	var req addMemberRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	membership, err := h.teams.AddMember(ctx.Context(), cast.ToUint(ctx.Params("id")), req.UserID, req.RoleID)
	switch {
	case errors.Is(err, moderation.ErrTeamNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Team not found")
	case errors.Is(err, moderation.ErrAlreadyMember):
		return fiber.NewError(fiber.StatusConflict, "User is already a team member")
	case err != nil:
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(newMembershipResponse(membership)))
}

func (h *TeamHandler) DeleteMember(ctx *fiber.Ctx) error {
	err := h.teams.RemoveMember(ctx.Context(), cast.ToUint(ctx.Params("id")), cast.ToUint(ctx.Params("userId")))
	if errors.Is(err, moderation.ErrMemberNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Team member not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Member removed"}))
}

func (h *TeamHandler) GetInvitations(ctx *fiber.Ctx) error {
	invitations, err := h.teams.ListInvitations(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(invitations))
}

func (h *TeamHandler) PostInvitation(ctx *fiber.Ctx) error {
	var req inviteModeratorRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	claims := middlewares.TokenClaims(ctx)
	invitation, err := h.teams.InviteModerator(ctx.Context(), req.Email, claims.UserID)
	switch {
	case errors.Is(err, moderation.ErrEmailRegistered):
		return fiber.NewError(fiber.StatusConflict, "Email already registered")
	case errors.Is(err, moderation.ErrAlreadyInvited):
		return fiber.NewError(fiber.StatusConflict, "Email already invited")
	case err != nil:
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(invitation))
}

// PostAcceptInvitation is public; the token is the credential.
func (h *TeamHandler) PostAcceptInvitation(ctx *fiber.Ctx) error {
	var req acceptInvitationRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	user, err := h.teams.AcceptInvitation(ctx.Context(), req.Token, moderation.AcceptInvitationParams{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Password:     req.Password,
		Organization: req.Organization,
		Relation:     req.Relation,
	})
	switch {
	case errors.Is(err, moderation.ErrInvitationNotFound):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid invitation token")
	case errors.Is(err, moderation.ErrEmailRegistered):
		return fiber.NewError(fiber.StatusConflict, "Email already registered")
	case err != nil:
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(newUserInfoResponse(user)))
}
