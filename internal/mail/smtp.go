package mail

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// SMTPMailSender delivers mail through an SMTP relay. Each Send dials a
// fresh connection; delivery volume here is low enough that pooling is not
// worth the complexity.
type SMTPMailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailSender(smtpConfig SMTPConfig, from string) (*SMTPMailSender, error) {
	dialer := gomail.NewDialer(smtpConfig.Host, smtpConfig.Port, smtpConfig.Username, smtpConfig.Password)
	tlsConfig, err := buildTLSConfig(smtpConfig)
	if err != nil {
		return nil, err
	}
	dialer.TLSConfig = tlsConfig
	return &SMTPMailSender{
		dialer: dialer,
		from:   from,
	}, nil
}

func buildTLSConfig(smtpCfg SMTPConfig) (*tls.Config, error) {
	if !smtpCfg.TLS {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	cert, err := tls.LoadX509KeyPair(smtpCfg.CertFile, smtpCfg.KeyFile)
	if err != nil {
		return nil, err
	}
	caPool := x509.NewCertPool()
	if smtpCfg.CAFile != "" {
		caCert, err := os.ReadFile(smtpCfg.CAFile)
		if err != nil {
			return nil, err
		}
		caPool.AppendCertsFromPEM(caCert)
	}
	return &tls.Config{
		ServerName:         smtpCfg.Host,
		InsecureSkipVerify: true,
		Certificates:       []tls.Certificate{cert},
		RootCAs:            caPool,
	}, nil
}

func (s *SMTPMailSender) Send(message *Message) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", message.To...)
	msg.SetHeader("Subject", message.Subject)
	contentType := "text/plain"
	if message.IsHTML {
		contentType = "text/html"
	}
	msg.SetBody(contentType, message.Body)
	return s.dialer.DialAndSend(msg)
}
