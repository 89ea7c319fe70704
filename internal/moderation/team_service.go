package moderation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

// Accounts is the slice of the user service the moderation workflow needs.
type Accounts interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, opts users.CreateAccountOptions) (*model.User, error)
}

// Mailer sends moderator invitation mail.
type Mailer interface {
	SendModeratorInvite(email string, token string) error
}

type AcceptInvitationParams struct {
	FirstName    string
	LastName     string
	Password     string
	Organization string
	Relation     string
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// TeamService manages moderation teams, their memberships and the
// invitation flow for new moderators.
type TeamService struct {
	teamRepo       TeamRepository
	membershipRepo MembershipRepository
	invitationRepo InvitationRepository
	profileRepo    ModeratorProfileRepository
	accounts       Accounts
	mailer         Mailer
}

func NewTeamService(teamRepo TeamRepository, membershipRepo MembershipRepository, invitationRepo InvitationRepository, profileRepo ModeratorProfileRepository, accounts Accounts, mailer Mailer) *TeamService {
	return &TeamService{
		teamRepo:       teamRepo,
		membershipRepo: membershipRepo,
		invitationRepo: invitationRepo,
		profileRepo:    profileRepo,
		accounts:       accounts,
		mailer:         mailer,
	}
}

func (s *TeamService) GetTeam(ctx context.Context, teamID uint) (*model.Team, error) {
	team, err := s.teamRepo.FirstByID(ctx, teamID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	return team, err
}

func (s *TeamService) ListTeams(ctx context.Context) ([]*model.Team, error) {
	return s.teamRepo.Find(ctx)
}

func (s *TeamService) CreateTeam(ctx context.Context, name string, description string) (*model.Team, error) {
	team := &model.Team{Name: name, Description: description}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		if isDuplicateKeyErr(err) {
			return nil, ErrTeamNameTaken
		}
		return nil, err
	}
	return team, nil
}

func (s *TeamService) UpdateTeam(ctx context.Context, teamID uint, columns map[string]interface{}) error {
	rows, err := s.teamRepo.Updates(ctx, teamID, columns)
	if isDuplicateKeyErr(err) {
		return ErrTeamNameTaken
	}
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTeamNotFound
	}
	return nil
}

func (s *TeamService) DeleteTeam(ctx context.Context, teamID uint) error {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return err
	}
	return s.teamRepo.Delete(ctx, teamID)
}

// AddMember adds a user to a team with a role. The same user twice is a
// conflict, surfaced from the unique index rather than a racy pre-check.
func (s *TeamService) AddMember(ctx context.Context, teamID uint, userID uint, roleID uint) (*model.TeamMembership, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	membership := &model.TeamMembership{TeamID: teamID, UserID: userID, RoleID: roleID}
	if err := s.membershipRepo.Create(ctx, membership); err != nil {
		if isDuplicateKeyErr(err) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}
	return membership, nil
}

func (s *TeamService) ListMembers(ctx context.Context, teamID uint) ([]*model.TeamMembership, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.membershipRepo.FindByTeam(ctx, teamID)
}

func (s *TeamService) RemoveMember(ctx context.Context, teamID uint, userID uint) error {
	rows, err := s.membershipRepo.Delete(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// InviteModerator creates an invitation with a fresh uuid token and mails
// the link. Inviting a registered email or the same email twice fails.
func (s *TeamService) InviteModerator(ctx context.Context, email string, invitedByID uint) (*model.ModeratorInvitation, error) {
	registered, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if registered {
		return nil, ErrEmailRegistered
	}
	invitation := &model.ModeratorInvitation{
		Email:       email,
		Token:       uuid.NewString(),
		InvitedByID: invitedByID,
	}
	if err := s.invitationRepo.Create(ctx, invitation); err != nil {
		if isDuplicateKeyErr(err) {
			return nil, ErrAlreadyInvited
		}
		return nil, err
	}
	if err := s.mailer.SendModeratorInvite(email, invitation.Token); err != nil {
		slog.Error("Could not send invitation mail", "error", err, "email", email)
	}
	return invitation, nil
}

func (s *TeamService) ListInvitations(ctx context.Context) ([]*model.ModeratorInvitation, error) {
	return s.invitationRepo.Find(ctx)
}

// AcceptInvitation consumes an invitation token, creating an active
// moderator account and its moderator profile.
func (s *TeamService) AcceptInvitation(ctx context.Context, token string, params AcceptInvitationParams) (*model.User, error) {
	invitation, err := s.invitationRepo.FirstByToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}

	user, err := s.accounts.Register(ctx, users.CreateAccountOptions{
		Email:       invitation.Email,
		FirstName:   params.FirstName,
		LastName:    params.LastName,
		Password:    params.Password,
		Active:      true,
		RoleCode:    model.RoleCodeModerator,
		InvitedByID: &invitation.InvitedByID,
	})
	if errors.Is(err, users.ErrEmailRegistered) {
		return nil, ErrEmailRegistered
	}
	if err != nil {
		return nil, err
	}
	err = s.profileRepo.Create(ctx, &model.ModeratorProfile{
		UserID:       user.ID,
		Organization: params.Organization,
		Relation:     params.Relation,
	})
	if err != nil {
		return nil, err
	}
	if err := s.invitationRepo.DeleteByID(ctx, invitation.ID); err != nil {
		slog.Error("Could not delete consumed invitation", "error", err, "invitationId", invitation.ID)
	}
	return user, nil
}
