package mail

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/render"
	"github.com/nobilishq/nobilis-server/params"
)

// Mailer builds and sends the application's transactional mail. Links point
// at the frontend, which owns the forms behind them.
type Mailer struct {
	sender      MailSender
	siteName    string
	frontendURL string
}

func NewMailer(sender MailSender, siteName string, frontendURL string) *Mailer {
	return &Mailer{
		sender:      sender,
		siteName:    siteName,
		frontendURL: frontendURL,
	}
}

func (m *Mailer) SendActivationLink(email string, name string, token string) error {
	body, err := render.RenderHTML("mail/activation", fiber.Map{
		"firstName":     name,
		"activationURL": fmt.Sprintf("%s/activate?token=%s", m.frontendURL, token),
		"expireHours":   int(params.ActivationTokenExpiration.Hours()),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(&Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Welcome to %s, activate your account", m.siteName),
		Body:    body,
		IsHTML:  true,
	})
}

func (m *Mailer) SendRejectionNotice(email string, name string, reason string) error {
	body, err := render.RenderHTML("mail/rejection", fiber.Map{
		"firstName": name,
		"reason":    reason,
	})
	if err != nil {
		return err
	}
	return m.sender.Send(&Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Your %s application", m.siteName),
		Body:    body,
		IsHTML:  true,
	})
}

func (m *Mailer) SendResetPasswordLink(email string, token string) error {
	body, err := render.RenderHTML("mail/reset-password", fiber.Map{
		"resetURL":      fmt.Sprintf("%s/reset-password?token=%s", m.frontendURL, token),
		"expireMinutes": int(params.ResetTokenExpiration.Minutes()),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(&Message{
		To:      []string{email},
		Subject: "Reset your password",
		Body:    body,
		IsHTML:  true,
	})
}

func (m *Mailer) SendModeratorInvite(email string, token string) error {
	body, err := render.RenderHTML("mail/moderator-invite", fiber.Map{
		"inviteURL": fmt.Sprintf("%s/invitations/accept?token=%s", m.frontendURL, token),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(&Message{
		To:      []string{email},
		Subject: fmt.Sprintf("You are invited to join %s", m.siteName),
		Body:    body,
		IsHTML:  true,
	})
}
