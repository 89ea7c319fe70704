package waitinglist

import (
	"context"
	"errors"
	"testing"

	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type fakeApplicantRepo struct {
	applicants map[uint]*model.Applicant
}

func newFakeApplicantRepo(applicants ...*model.Applicant) *fakeApplicantRepo {
	repo := &fakeApplicantRepo{applicants: make(map[uint]*model.Applicant)}
	for _, a := range applicants {
		repo.applicants[a.ID] = a
	}
	return repo
}

func (r *fakeApplicantRepo) WithTx(tx *gorm.DB) ApplicantRepository { return r }

func (r *fakeApplicantRepo) FirstByID(ctx context.Context, applicantID uint) (*model.Applicant, error) {
	applicant, ok := r.applicants[applicantID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *applicant
	return &clone, nil
}

func (r *fakeApplicantRepo) Find(ctx context.Context, status model.ApplicantStatus) ([]*model.Applicant, error) {
	var out []*model.Applicant
	for _, a := range r.applicants {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeApplicantRepo) ExistsWithStatus(ctx context.Context, email string, status model.ApplicantStatus) (bool, error) {
	for _, a := range r.applicants {
		if a.Email == email && a.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeApplicantRepo) Create(ctx context.Context, applicant *model.Applicant) error {
	if applicant.ID == 0 {
		applicant.ID = uint(len(r.applicants) + 1)
	}
	r.applicants[applicant.ID] = applicant
	return nil
}

func (r *fakeApplicantRepo) UpdateStatusIf(ctx context.Context, applicantID uint, from, to model.ApplicantStatus, columns map[string]interface{}) (int64, error) {
	applicant, ok := r.applicants[applicantID]
	if !ok || applicant.Status != from {
		return 0, nil
	}
	applicant.Status = to
	if reasonID, ok := columns["rejection_reason_id"].(uint); ok {
		applicant.RejectionReasonID = &reasonID
	}
	if notes, ok := columns["notes"].(string); ok {
		applicant.Notes = notes
	}
	return 1, nil
}

type fakeReasonRepo struct {
	reasons map[uint]*model.RejectionReason
}

func (r *fakeReasonRepo) FirstByID(ctx context.Context, reasonID uint) (*model.RejectionReason, error) {
	reason, ok := r.reasons[reasonID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return reason, nil
}

func (r *fakeReasonRepo) Find(ctx context.Context) ([]*model.RejectionReason, error) {
	var out []*model.RejectionReason
	for _, reason := range r.reasons {
		out = append(out, reason)
	}
	return out, nil
}

func (r *fakeReasonRepo) Create(ctx context.Context, reason *model.RejectionReason) error {
	r.reasons[reason.ID] = reason
	return nil
}

type fakeAccounts struct {
	registered map[string]bool
	admins     []*model.User
	created    []users.CreateAccountOptions
	createErr  error
}

func (a *fakeAccounts) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.registered[email], nil
}

func (a *fakeAccounts) CreateInactiveAccountTx(ctx context.Context, tx *gorm.DB, opts users.CreateAccountOptions) (*model.User, *model.ActivationToken, error) {
	if a.createErr != nil {
		return nil, nil, a.createErr
	}
	a.created = append(a.created, opts)
	user := &model.User{ID: 99, Email: opts.Email, FirstName: opts.FirstName}
	token := &model.ActivationToken{Email: opts.Email, Token: "activation-token", UserID: user.ID}
	return user, token, nil
}

func (a *fakeAccounts) FindAdmins(ctx context.Context) ([]*model.User, error) {
	return a.admins, nil
}

type sentNotification struct {
	recipientID uint
	verb        string
}

type fakeNotifier struct {
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, recipientID uint, actorID *uint, verb string, description string, targetType string, targetID *uint) error {
	n.sent = append(n.sent, sentNotification{recipientID: recipientID, verb: verb})
	return nil
}

type fakeMailer struct {
	activations []string
	rejections  []string
	sendErr     error
}

func (m *fakeMailer) SendActivationLink(email string, name string, token string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.activations = append(m.activations, email)
	return nil
}

func (m *fakeMailer) SendRejectionNotice(email string, name string, reason string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.rejections = append(m.rejections, email)
	return nil
}

type admissionFixture struct {
	svc        *AdmissionService
	applicants *fakeApplicantRepo
	reasons    *fakeReasonRepo
	accounts   *fakeAccounts
	notifier   *fakeNotifier
	mailer     *fakeMailer
}

func newAdmissionFixture(applicants ...*model.Applicant) *admissionFixture {
	f := &admissionFixture{
		applicants: newFakeApplicantRepo(applicants...),
		reasons: &fakeReasonRepo{reasons: map[uint]*model.RejectionReason{
			1: {ID: 1, Code: "no_fit", Label: "Not a fit right now"},
		}},
		accounts: &fakeAccounts{registered: make(map[string]bool)},
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
	}
	f.svc = NewAdmissionService(nil, f.applicants, f.reasons, f.accounts, f.notifier, f.mailer)
	return f
}

func pendingApplicant(id uint, email string) *model.Applicant {
	return &model.Applicant{
		ID:        id,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Status:    model.ApplicantStatusPending,
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	t.Run("notifies every admin", func(t *testing.T) {
		f := newAdmissionFixture()
		f.accounts.admins = []*model.User{{ID: 1}, {ID: 2}}
		applicant, err := f.svc.Submit(ctx, SubmitApplicantParams{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if applicant.Status != model.ApplicantStatusPending {
			t.Errorf("status = %q, want pending", applicant.Status)
		}
		if len(f.notifier.sent) != 2 {
			t.Fatalf("notified %d admins, want 2", len(f.notifier.sent))
		}
		if f.notifier.sent[0].verb != "applied" {
			t.Errorf("verb = %q, want applied", f.notifier.sent[0].verb)
		}
	})
	t.Run("rejects email of approved entry", func(t *testing.T) {
		approved := pendingApplicant(1, "ada@example.com")
		approved.Status = model.ApplicantStatusApproved
		f := newAdmissionFixture(approved)
		_, err := f.svc.Submit(ctx, SubmitApplicantParams{Email: "ada@example.com"})
		if !errors.Is(err, ErrEmailRegistered) {
			t.Errorf("Submit() error = %v, want ErrEmailRegistered", err)
		}
	})
	t.Run("rejects email of registered account", func(t *testing.T) {
		f := newAdmissionFixture()
		f.accounts.registered["ada@example.com"] = true
		_, err := f.svc.Submit(ctx, SubmitApplicantParams{Email: "ada@example.com"})
		if !errors.Is(err, ErrEmailRegistered) {
			t.Errorf("Submit() error = %v, want ErrEmailRegistered", err)
		}
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	t.Run("provisions account and sends activation mail", func(t *testing.T) {
		f := newAdmissionFixture(pendingApplicant(1, "ada@example.com"))
		applicant, err := f.svc.Approve(ctx, 1, 7)
		if err != nil {
			t.Fatalf("Approve() error = %v", err)
		}
		if applicant.Status != model.ApplicantStatusApproved {
			t.Errorf("status = %q, want approved", applicant.Status)
		}
		if len(f.accounts.created) != 1 {
			t.Fatalf("created %d accounts, want 1", len(f.accounts.created))
		}
		opts := f.accounts.created[0]
		if opts.Email != "ada@example.com" || opts.RoleCode != model.RoleCodeMember {
			t.Errorf("unexpected account options %+v", opts)
		}
		if opts.InvitedByID == nil || *opts.InvitedByID != 7 {
			t.Errorf("invitedBy = %v, want 7", opts.InvitedByID)
		}
		if len(f.mailer.activations) != 1 {
			t.Errorf("sent %d activation mails, want 1", len(f.mailer.activations))
		}
	})
	t.Run("unknown applicant", func(t *testing.T) {
		f := newAdmissionFixture()
		_, err := f.svc.Approve(ctx, 404, 7)
		if !errors.Is(err, ErrApplicantNotFound) {
			t.Errorf("Approve() error = %v, want ErrApplicantNotFound", err)
		}
	})
	t.Run("already processed", func(t *testing.T) {
		rejected := pendingApplicant(1, "ada@example.com")
		rejected.Status = model.ApplicantStatusRejected
		f := newAdmissionFixture(rejected)
		_, err := f.svc.Approve(ctx, 1, 7)
		if !errors.Is(err, ErrAlreadyProcessed) {
			t.Errorf("Approve() error = %v, want ErrAlreadyProcessed", err)
		}
		if len(f.accounts.created) != 0 {
			t.Errorf("created %d accounts, want 0", len(f.accounts.created))
		}
	})
	t.Run("email already registered auto-rejects", func(t *testing.T) {
		f := newAdmissionFixture(pendingApplicant(1, "ada@example.com"))
		f.accounts.registered["ada@example.com"] = true
		_, err := f.svc.Approve(ctx, 1, 7)
		if !errors.Is(err, ErrEmailRegistered) {
			t.Fatalf("Approve() error = %v, want ErrEmailRegistered", err)
		}
		if got := f.applicants.applicants[1].Status; got != model.ApplicantStatusRejected {
			t.Errorf("status = %q, want rejected", got)
		}
	})
	t.Run("registration race auto-rejects", func(t *testing.T) {
		f := newAdmissionFixture(pendingApplicant(1, "ada@example.com"))
		f.accounts.createErr = users.ErrEmailRegistered
		_, err := f.svc.Approve(ctx, 1, 7)
		if !errors.Is(err, ErrEmailRegistered) {
			t.Fatalf("Approve() error = %v, want ErrEmailRegistered", err)
		}
	})
	t.Run("mail failure still approves", func(t *testing.T) {
		f := newAdmissionFixture(pendingApplicant(1, "ada@example.com"))
		f.mailer.sendErr = errors.New("smtp down")
		applicant, err := f.svc.Approve(ctx, 1, 7)
		if !errors.Is(err, ErrMailDelivery) {
			t.Fatalf("Approve() error = %v, want ErrMailDelivery", err)
		}
		if applicant == nil || applicant.Status != model.ApplicantStatusApproved {
			t.Errorf("applicant = %+v, want approved", applicant)
		}
		if got := f.applicants.applicants[1].Status; got != model.ApplicantStatusApproved {
			t.Errorf("stored status = %q, want approved", got)
		}
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	t.Run("records reason and mails applicant", func(t *testing.T) {
		f := newAdmissionFixture(pendingApplicant(1, "ada@example.com"))
		applicant, err := f.svc.Reject(ctx, 1, 1, "see you next round")
		if err != nil {
			t.Fatalf("Reject() error = %v", err)
		}
		if applicant.Status != model.ApplicantStatusRejected {
			t.Errorf("status = %q, want rejected", applicant.Status)
		}
		if applicant.RejectionReasonID == nil || *applicant.RejectionReasonID != 1 {
			t.Errorf("reasonID = %v, want 1", applicant.RejectionReasonID)
		}
		if len(f.mailer.rejections) != 1 {
			t.Errorf("sent %d rejection mails, want 1", len(f.mailer.rejections))
		}
	})
	t.Run("unknown reason", func(t *testing.T) {
		f := newAdmissionFixture(pendingApplicant(1, "ada@example.com"))
		_, err := f.svc.Reject(ctx, 1, 404, "")
		if !errors.Is(err, ErrReasonNotFound) {
			t.Errorf("Reject() error = %v, want ErrReasonNotFound", err)
		}
	})
	t.Run("already processed", func(t *testing.T) {
		approved := pendingApplicant(1, "ada@example.com")
		approved.Status = model.ApplicantStatusApproved
		f := newAdmissionFixture(approved)
		_, err := f.svc.Reject(ctx, 1, 1, "")
		if !errors.Is(err, ErrAlreadyProcessed) {
			t.Errorf("Reject() error = %v, want ErrAlreadyProcessed", err)
		}
	})
	t.Run("mail failure does not fail rejection", func(t *testing.T) {
		f := newAdmissionFixture(pendingApplicant(1, "ada@example.com"))
		f.mailer.sendErr = errors.New("smtp down")
		if _, err := f.svc.Reject(ctx, 1, 1, ""); err != nil {
			t.Fatalf("Reject() error = %v", err)
		}
	})
}

func TestCheckExisting(t *testing.T) {
	ctx := context.Background()
	approved := pendingApplicant(1, "ada@example.com")
	approved.Status = model.ApplicantStatusApproved
	f := newAdmissionFixture(approved, pendingApplicant(2, "bob@example.com"))

	ok, err := f.svc.CheckExisting(ctx, "ada@example.com")
	if err != nil || !ok {
		t.Errorf("CheckExisting(approved) = %v, %v, want true", ok, err)
	}
	ok, err = f.svc.CheckExisting(ctx, "bob@example.com")
	if err != nil || ok {
		t.Errorf("CheckExisting(pending) = %v, %v, want false", ok, err)
	}
}
