package api

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/audit"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/waitinglist"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/spf13/cast"
)

type ApplicantHandler struct {
	admissions *waitinglist.AdmissionService
}

func NewApplicantHandler(admissions *waitinglist.AdmissionService) *ApplicantHandler {
	return &ApplicantHandler{admissions: admissions}
}

type submitApplicantRequest struct {
	FirstName     string         `json:"firstName" validate:"required,max=100"`
	LastName      string         `json:"lastName" validate:"required,max=150"`
	Email         string         `json:"email" validate:"required,email"`
	PhoneNumber   string         `json:"phoneNumber" validate:"required,max=20"`
	Occupation    string         `json:"occupation" validate:"max=60"`
	City          string         `json:"city" validate:"max=60"`
	Referenced    string         `json:"referenced" validate:"max=60"`
	SurveyAnswers map[string]any `json:"surveyAnswers"`
}

type rejectApplicantRequest struct {
	ReasonID uint   `json:"reasonId" validate:"required"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type applicantResponse struct {
	ID          uint   `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
	City        string `json:"city,omitempty"`
	Referenced  string `json:"referenced,omitempty"`
	Status      string `json:"status"`
	Reason      string `json:"rejectionReason,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

func newApplicantResponse(applicant *model.Applicant) applicantResponse {
	resp := applicantResponse{
		ID:          applicant.ID,
		FirstName:   applicant.FirstName,
		LastName:    applicant.LastName,
		Email:       applicant.Email,
		PhoneNumber: applicant.PhoneNumber,
		Occupation:  applicant.Occupation,
		City:        applicant.City,
		Referenced:  applicant.Referenced,
		Status:      string(applicant.Status),
		Notes:       applicant.Notes,
	}
	if applicant.RejectionReason != nil {
		resp.Reason = applicant.RejectionReason.Label
	}
	return resp
}

// PostSubmit handles the public waiting list form.
func (h *ApplicantHandler) PostSubmit(ctx *fiber.Ctx) error {
	var req submitApplicantRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	var survey []byte
	if req.SurveyAnswers != nil {
		survey, _ = json.Marshal(req.SurveyAnswers)
	}
	applicant, err := h.admissions.Submit(ctx.Context(), waitinglist.SubmitApplicantParams{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		PhoneNumber:   req.PhoneNumber,
		Occupation:    req.Occupation,
		City:          req.City,
		Referenced:    req.Referenced,
		SurveyAnswers: survey,
	})
	if errors.Is(err, waitinglist.ErrEmailRegistered) {
		return fiber.NewError(fiber.StatusConflict, "Email already registered")
	}
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(newApplicantResponse(applicant)))
}

// GetCheckExisting reports whether an email belongs to an approved entry.
func (h *ApplicantHandler) GetCheckExisting(ctx *fiber.Ctx) error {
	email := ctx.Query("email")
	if email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing email parameter")
	}
	exists, err := h.admissions.CheckExisting(ctx.Context(), email)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"exists": exists}))
}

// GetApplicants lists waiting list entries, optionally filtered by status.
func (h *ApplicantHandler) GetApplicants(ctx *fiber.Ctx) error {
	status := model.ApplicantStatus(ctx.Query("status"))
	applicants, err := h.admissions.ListApplicants(ctx.Context(), status)
	if err != nil {
		return err
	}
	resp := make([]applicantResponse, 0, len(applicants))
	for _, applicant := range applicants {
		resp = append(resp, newApplicantResponse(applicant))
	}
	return ctx.JSON(NewDataResponse(resp))
}

func (h *ApplicantHandler) GetApplicant(ctx *fiber.Ctx) error {
	applicant, err := h.admissions.GetApplicant(ctx.Context(), cast.ToUint(ctx.Params("id")))
	if errors.Is(err, waitinglist.ErrApplicantNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Applicant not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newApplicantResponse(applicant)))
}

// PostApprove flips a pending entry to approved and provisions the member
// account. A failed activation mail does not undo the approval; it is
// reported as a warning instead.
func (h *ApplicantHandler) PostApprove(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	applicant, err := h.admissions.Approve(ctx.Context(), cast.ToUint(ctx.Params("id")), claims.UserID)
	mailFailed := false
	switch {
	case errors.Is(err, waitinglist.ErrApplicantNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Applicant not found")
	case errors.Is(err, waitinglist.ErrAlreadyProcessed):
		return fiber.NewError(fiber.StatusConflict, "Applicant already processed")
	case errors.Is(err, waitinglist.ErrEmailRegistered):
		return fiber.NewError(fiber.StatusConflict, "Email already registered")
	case errors.Is(err, waitinglist.ErrMailDelivery):
		mailFailed = true
	case err != nil:
		return err
	}
	resp := newApplicantResponse(applicant)
	if mailFailed {
		resp.Warning = "Activation email could not be delivered"
	}
	h.recordDecision(ctx, applicant, true, "")
	return ctx.JSON(NewDataResponse(resp))
}

func (h *ApplicantHandler) PostReject(ctx *fiber.Ctx) error {
	var req rejectApplicantRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	applicant, err := h.admissions.Reject(ctx.Context(), cast.ToUint(ctx.Params("id")), req.ReasonID, req.Notes)
	switch {
	case errors.Is(err, waitinglist.ErrApplicantNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Applicant not found")
	case errors.Is(err, waitinglist.ErrAlreadyProcessed):
		return fiber.NewError(fiber.StatusConflict, "Applicant already processed")
	case errors.Is(err, waitinglist.ErrReasonNotFound):
		return fiber.NewError(fiber.StatusBadRequest, "Unknown rejection reason")
	case err != nil:
		return err
	}
	reason := ""
	if applicant.RejectionReason != nil {
		reason = applicant.RejectionReason.Label
	}
	h.recordDecision(ctx, applicant, false, reason)
	return ctx.JSON(NewDataResponse(newApplicantResponse(applicant)))
}

func (h *ApplicantHandler) GetReasons(ctx *fiber.Ctx) error {
	reasons, err := h.admissions.ListReasons(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(reasons))
}

func (h *ApplicantHandler) recordDecision(ctx *fiber.Ctx, applicant *model.Applicant, approved bool, reason string) {
	claims := middlewares.TokenClaims(ctx)
	err := audit.RecordDecision(ctx.Context(), audit.DecisionRecord{
		ActorID:     claims.UserID,
		Email:       claims.Email,
		ApplicantID: applicant.ID,
		Approved:    approved,
		Reason:      reason,
		IP:          ctx.IP(),
		UserAgent:   ctx.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		slog.Error("Could not record audit event", "error", err, "applicantId", applicant.ID)
	}
}
