package waitinglist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AccountService is the slice of the user service the admission workflow
// needs to provision approved members.
type AccountService interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateInactiveAccountTx(ctx context.Context, tx *gorm.DB, opts users.CreateAccountOptions) (*model.User, *model.ActivationToken, error)
	FindAdmins(ctx context.Context) ([]*model.User, error)
}

// Notifier delivers in-app notifications. Delivery failures must not roll
// back the admission itself.
type Notifier interface {
	Notify(ctx context.Context, recipientID uint, actorID *uint, verb string, description string, targetType string, targetID *uint) error
}

// Mailer sends the transactional mail the workflow produces.
type Mailer interface {
	SendActivationLink(email string, name string, token string) error
	SendRejectionNotice(email string, name string, reason string) error
}

type SubmitApplicantParams struct {
	FirstName     string
	LastName      string
	Email         string
	PhoneNumber   string
	Occupation    string
	City          string
	Referenced    string
	SurveyAnswers []byte
}

// AdmissionService runs the waiting list workflow from submission to the
// approve or reject decision.
type AdmissionService struct {
	db            *gorm.DB
	applicantRepo ApplicantRepository
	reasonRepo    ReasonRepository
	accounts      AccountService
	notifier      Notifier
	mailer        Mailer
}

func NewAdmissionService(db *gorm.DB, applicantRepo ApplicantRepository, reasonRepo ReasonRepository, accounts AccountService, notifier Notifier, mailer Mailer) *AdmissionService {
	return &AdmissionService{
		db:            db,
		applicantRepo: applicantRepo,
		reasonRepo:    reasonRepo,
		accounts:      accounts,
		notifier:      notifier,
		mailer:        mailer,
	}
}

func (s *AdmissionService) runInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// Submit records a new waiting list entry and fans out a notification to
// every admin. An email that already belongs to an approved entry is
// rejected so the same person cannot queue up twice.
func (s *AdmissionService) Submit(ctx context.Context, params SubmitApplicantParams) (*model.Applicant, error) {
	approved, err := s.applicantRepo.ExistsWithStatus(ctx, params.Email, model.ApplicantStatusApproved)
	if err != nil {
		return nil, err
	}
	if approved {
		return nil, ErrEmailRegistered
	}
	registered, err := s.accounts.ExistsByEmail(ctx, params.Email)
	if err != nil {
		return nil, err
	}
	if registered {
		return nil, ErrEmailRegistered
	}

	applicant := &model.Applicant{
		FirstName:     params.FirstName,
		LastName:      params.LastName,
		Email:         params.Email,
		PhoneNumber:   params.PhoneNumber,
		Occupation:    params.Occupation,
		City:          params.City,
		Referenced:    params.Referenced,
		SurveyAnswers: datatypes.JSON(params.SurveyAnswers),
		Status:        model.ApplicantStatusPending,
	}
	if err := s.applicantRepo.Create(ctx, applicant); err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, applicant)
	return applicant, nil
}

func (s *AdmissionService) notifyAdmins(ctx context.Context, applicant *model.Applicant) {
	admins, err := s.accounts.FindAdmins(ctx)
	if err != nil {
		slog.Error("Could not load admins for applicant notification", "error", err, "applicantId", applicant.ID)
		return
	}
	desc := fmt.Sprintf("%s %s joined the waiting list", applicant.FirstName, applicant.LastName)
	for _, admin := range admins {
		targetID := applicant.ID
		err := s.notifier.Notify(ctx, admin.ID, nil, "applied", desc, model.TargetTypeApplicant, &targetID)
		if err != nil {
			slog.Error("Could not notify admin of new applicant", "error", err, "adminId", admin.ID, "applicantId", applicant.ID)
		}
	}
}

// GetApplicant returns a single waiting list entry by id.
func (s *AdmissionService) GetApplicant(ctx context.Context, id uint) (*model.Applicant, error) {
	applicant, err := s.applicantRepo.FirstByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrApplicantNotFound
	}
	return applicant, err
}

// ListApplicants returns waiting list entries, newest first, optionally
// filtered by status.
func (s *AdmissionService) ListApplicants(ctx context.Context, status model.ApplicantStatus) ([]*model.Applicant, error) {
	return s.applicantRepo.Find(ctx, status)
}

// CheckExisting reports whether the email belongs to an approved entry.
func (s *AdmissionService) CheckExisting(ctx context.Context, email string) (bool, error) {
	return s.applicantRepo.ExistsWithStatus(ctx, email, model.ApplicantStatusApproved)
}

// Approve flips a pending entry to approved and provisions the inactive
// member account, its profile and the activation token in one transaction.
// The status transition is a conditional update, so two concurrent approvals
// of the same entry resolve to exactly one winner. When the email already
// belongs to an account the entry is auto-rejected instead.
func (s *AdmissionService) Approve(ctx context.Context, id uint, actorID uint) (*model.Applicant, error) {
	applicant, err := s.GetApplicant(ctx, id)
	if err != nil {
		return nil, err
	}
	if applicant.Status != model.ApplicantStatusPending {
		return nil, ErrAlreadyProcessed
	}

	registered, err := s.accounts.ExistsByEmail(ctx, applicant.Email)
	if err != nil {
		return nil, err
	}
	if registered {
		return nil, s.rejectRegistered(ctx, applicant)
	}

	var token *model.ActivationToken
	err = s.runInTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.applicantRepo.WithTx(tx).UpdateStatusIf(ctx, id, model.ApplicantStatusPending, model.ApplicantStatusApproved, nil)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAlreadyProcessed
		}
		_, token, err = s.accounts.CreateInactiveAccountTx(ctx, tx, users.CreateAccountOptions{
			Email:       applicant.Email,
			FirstName:   applicant.FirstName,
			LastName:    applicant.LastName,
			RoleCode:    model.RoleCodeMember,
			InvitedByID: &actorID,
			PhoneNumber: applicant.PhoneNumber,
			City:        applicant.City,
			Occupation:  applicant.Occupation,
		})
		return err
	})
	if errors.Is(err, users.ErrEmailRegistered) {
		// Lost a race with a direct registration. The account wins, the
		// entry is closed out as rejected.
		return nil, s.rejectRegistered(ctx, applicant)
	}
	if err != nil {
		return nil, err
	}
	applicant.Status = model.ApplicantStatusApproved

	if err := s.mailer.SendActivationLink(applicant.Email, applicant.FirstName, token.Token); err != nil {
		slog.Error("Could not send activation mail", "error", err, "email", applicant.Email)
		return applicant, ErrMailDelivery
	}
	return applicant, nil
}

func (s *AdmissionService) rejectRegistered(ctx context.Context, applicant *model.Applicant) error {
	_, err := s.applicantRepo.UpdateStatusIf(ctx, applicant.ID, model.ApplicantStatusPending, model.ApplicantStatusRejected, nil)
	if err != nil {
		slog.Error("Could not auto-reject applicant with registered email", "error", err, "applicantId", applicant.ID)
	}
	return ErrEmailRegistered
}

// Reject flips a pending entry to rejected with a catalogued reason and
// emails the applicant. Mail delivery is best effort.
func (s *AdmissionService) Reject(ctx context.Context, id uint, reasonID uint, notes string) (*model.Applicant, error) {
	applicant, err := s.GetApplicant(ctx, id)
	if err != nil {
		return nil, err
	}
	if applicant.Status != model.ApplicantStatusPending {
		return nil, ErrAlreadyProcessed
	}
	reason, err := s.reasonRepo.FirstByID(ctx, reasonID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReasonNotFound
	}
	if err != nil {
		return nil, err
	}

	columns := map[string]any{
		"rejection_reason_id": reasonID,
		"notes":               notes,
	}
	rows, err := s.applicantRepo.UpdateStatusIf(ctx, id, model.ApplicantStatusPending, model.ApplicantStatusRejected, columns)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrAlreadyProcessed
	}
	applicant.Status = model.ApplicantStatusRejected
	applicant.RejectionReasonID = &reasonID
	applicant.RejectionReason = reason
	applicant.Notes = notes

	if err := s.mailer.SendRejectionNotice(applicant.Email, applicant.FirstName, reason.Label); err != nil {
		slog.Error("Could not send rejection mail", "error", err, "email", applicant.Email)
	}
	return applicant, nil
}

// ListReasons returns the rejection reason catalog.
func (s *AdmissionService) ListReasons(ctx context.Context) ([]*model.RejectionReason, error) {
	return s.reasonRepo.Find(ctx)
}
