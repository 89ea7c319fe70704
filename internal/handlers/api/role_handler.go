package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/spf13/cast"
)

type RoleHandler struct {
	userService *users.UserService
}

func NewRoleHandler(userService *users.UserService) *RoleHandler {
	return &RoleHandler{userService: userService}
}

type createRoleRequest struct {
	Code        string `json:"code" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=256"`
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=64"`
	Description *string `json:"description" validate:"omitempty,max=256"`
}

func (h *RoleHandler) GetRoles(ctx *fiber.Ctx) error {
	roles, err := h.userService.ListRoles(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(roles))
}

func (h *RoleHandler) PostRole(ctx *fiber.Ctx) error {
	var req createRoleRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	role := &model.Role{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
	}
	err := h.userService.CreateRole(ctx.Context(), role)
	if errors.Is(err, users.ErrRoleCodeTaken) {
		return fiber.NewError(fiber.StatusConflict, "Role code already taken")
	}
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(role))
}

func (h *RoleHandler) PatchRole(ctx *fiber.Ctx) error {
	var req updateRoleRequest
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
	err := h.userService.UpdateRole(ctx.Context(), cast.ToUint(ctx.Params("id")), columns)
	if errors.Is(err, users.ErrRoleNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Role not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Role updated"}))
}

func (h *RoleHandler) DeleteRole(ctx *fiber.Ctx) error {
	err := h.userService.DeleteRole(ctx.Context(), cast.ToUint(ctx.Params("id")))
	if errors.Is(err, users.ErrRoleNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Role not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Role deleted"}))
}
