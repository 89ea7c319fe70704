package users

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/nobilishq/nobilis-server/internal/store"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/nobilishq/nobilis-server/params"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type CreateAccountOptions struct {
	Email       string
	FirstName   string
	LastName    string
	Password    string // empty for accounts activated via token
	Active      bool
	IsAdmin     bool
	RoleCode    string
	InvitedByID *uint
	PhoneNumber string
	City        string
	Occupation  string
}

// ResetToken is the redis-stored payload of a pending password reset.
type ResetToken struct {
	UserID uint   `json:"userId"`
	Email  string `json:"email"`
}

type UserService struct {
	db          *gorm.DB
	userRepo    UserRepository
	profileRepo ProfileRepository
	roleRepo    RoleRepository
	tokenRepo   ActivationTokenRepository
	resetStore  store.Store[ResetToken]
}

func NewUserService(
	db *gorm.DB,
	userRepo UserRepository,
	profileRepo ProfileRepository,
	roleRepo RoleRepository,
	tokenRepo ActivationTokenRepository,
	resetStore store.Store[ResetToken],
) *UserService {
	return &UserService{
		db:          db,
		userRepo:    userRepo,
		profileRepo: profileRepo,
		roleRepo:    roleRepo,
		tokenRepo:   tokenRepo,
		resetStore:  resetStore,
	}
}

func (s *UserService) runInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func generateOpaqueToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("failed to generate random bytes: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.FirstByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrUserNotFound
	}
	user, err := s.userRepo.FirstByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.userRepo.ExistsByEmail(ctx, email)
}

func (s *UserService) FindAdmins(ctx context.Context) ([]*model.User, error) {
	return s.userRepo.FindAdmins(ctx)
}

func (s *UserService) newUserFromOptions(ctx context.Context, opts CreateAccountOptions) (*model.User, error) {
	user := model.User{
		Email:       opts.Email,
		FirstName:   opts.FirstName,
		LastName:    opts.LastName,
		IsActive:    opts.Active,
		IsAdmin:     opts.IsAdmin,
		InvitedByID: opts.InvitedByID,
	}
	if opts.Password != "" {
		passwordHash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.Password = string(passwordHash)
	}
	if opts.RoleCode != "" {
		role, err := s.roleRepo.FirstByCode(ctx, opts.RoleCode)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if role != nil {
			user.RoleID = &role.ID
		}
	}
	return &user, nil
}

// Register creates an immediately active account together with its profile.
func (s *UserService) Register(ctx context.Context, opts CreateAccountOptions) (*model.User, error) {
	if _, err := mail.ParseAddress(opts.Email); err != nil {
		return nil, fmt.Errorf("invalid email address: %w", err)
	}
	opts.Active = true
	user, err := s.newUserFromOptions(ctx, opts)
	if err != nil {
		return nil, err
	}

	err = s.runInTx(ctx, func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		profile := model.UserProfile{
			UserID:      user.ID,
			PhoneNumber: opts.PhoneNumber,
			City:        opts.City,
			Occupation:  opts.Occupation,
		}
		return s.profileRepo.WithTx(tx).Create(ctx, &profile)
	})
	if isDuplicateKeyErr(err) {
		return nil, ErrEmailRegistered
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateInactiveAccountTx provisions a login-incapable account with its
// profile and a fresh activation token using the given transaction handle.
// All created aggregates are returned together so the caller decides the
// transactional boundary and what happens on later failures (e.g. mail
// delivery).
func (s *UserService) CreateInactiveAccountTx(ctx context.Context, tx *gorm.DB, opts CreateAccountOptions) (*model.User, *model.ActivationToken, error) {
	opts.Active = false
	user, err := s.newUserFromOptions(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.tokenRepo.WithTx(tx).DeleteByEmail(ctx, opts.Email); err != nil {
		return nil, nil, err
	}
	if err := s.userRepo.WithTx(tx).Create(ctx, user); err != nil {
		if isDuplicateKeyErr(err) {
			return nil, nil, ErrEmailRegistered
		}
		return nil, nil, err
	}
	profile := model.UserProfile{
		UserID:      user.ID,
		PhoneNumber: opts.PhoneNumber,
		City:        opts.City,
		Occupation:  opts.Occupation,
	}
	if err := s.profileRepo.WithTx(tx).Create(ctx, &profile); err != nil {
		return nil, nil, err
	}
	token := model.ActivationToken{
		Email:     opts.Email,
		Token:     generateOpaqueToken(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(params.ActivationTokenExpiration),
	}
	if err := s.tokenRepo.WithTx(tx).Create(ctx, &token); err != nil {
		return nil, nil, err
	}
	return user, &token, nil
}

// CreateInactiveAccount is CreateInactiveAccountTx wrapped in its own
// transaction.
func (s *UserService) CreateInactiveAccount(ctx context.Context, opts CreateAccountOptions) (*model.User, *model.ActivationToken, error) {
	var (
		user  *model.User
		token *model.ActivationToken
	)
	err := s.runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		user, token, err = s.CreateInactiveAccountTx(ctx, tx, opts)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

// Authenticate verifies the email/password pair for an active account.
func (s *UserService) Authenticate(ctx context.Context, email string, password string) (*model.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

// ActivateAccount consumes an activation token: sets the password, flips the
// account active and deletes the token. The token is single use.
func (s *UserService) ActivateAccount(ctx context.Context, tokenStr string, newPassword string) (*model.User, error) {
	record, err := s.tokenRepo.FirstByToken(ctx, tokenStr)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if record.Expired() {
		_, _ = s.tokenRepo.DeleteByID(ctx, record.ID)
		return nil, ErrInvalidToken
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	updated, err := s.userRepo.Updates(ctx, record.UserID, map[string]interface{}{
		"password":  string(passwordHash),
		"is_active": true,
	})
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		return nil, ErrUserNotFound
	}
	if _, err := s.tokenRepo.DeleteByID(ctx, record.ID); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, record.UserID)
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID uint, oldPassword string, newPassword string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return ErrPasswordMismatch
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"password": string(passwordHash),
	})
	return err
}

// CreatePasswordReset issues an opaque single-use reset token. ErrUserNotFound
// is returned so the handler can keep the response neutral without mailing
// anyone.
func (s *UserService) CreatePasswordReset(ctx context.Context, email string) (string, *model.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	token := generateOpaqueToken()
	record := ResetToken{UserID: user.ID, Email: user.Email}
	if err := s.resetStore.Set(ctx, token, record, params.ResetTokenExpiration); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *UserService) ResetPassword(ctx context.Context, tokenStr string, newPassword string) (*model.User, error) {
	record, err := s.resetStore.Remove(ctx, tokenStr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if _, err := s.userRepo.Updates(ctx, record.UserID, map[string]interface{}{
		"password": string(passwordHash),
	}); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, record.UserID)
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*model.UserProfile, error) {
	profile, err := s.profileRepo.FirstByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	return profile, err
}

// UpdateProfile applies the given profile columns for the user.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, columns map[string]interface{}) error {
	updated, err := s.profileRepo.Updates(ctx, userID, columns)
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *UserService) ListRoles(ctx context.Context) ([]*model.Role, error) {
	return s.roleRepo.Find(ctx)
}

func (s *UserService) CreateRole(ctx context.Context, role *model.Role) error {
	err := s.roleRepo.Create(ctx, role)
	if isDuplicateKeyErr(err) {
		return ErrRoleCodeTaken
	}
	return err
}

func (s *UserService) UpdateRole(ctx context.Context, roleID uint, columns map[string]interface{}) error {
	updated, err := s.roleRepo.Updates(ctx, roleID, columns)
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (s *UserService) DeleteRole(ctx context.Context, roleID uint) error {
	deleted, err := s.roleRepo.Delete(ctx, roleID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrRoleNotFound
	}
	return nil
}
