// Package smtp notifies contacts of danger alerts by email.
package smtp

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/alert"
	"github.com/alowde/dtracker/logger"
)

// RelayConfig describes an SMTP relay host, used for sending alerts.
type RelayConfig struct {
	Server   string `json:"server"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	Timeout  int    `json:"timeout"` // seconds allowed for one whole delivery
}

// Config is the relay in use, set by the "smtp" alerters block.
var Config RelayConfig

var log *logrus.Entry

// sendMail is swapped out in tests.
var sendMail = deliver

// deliver sends one message like smtp.SendMail, but the whole exchange, from dial to QUIT, must finish within the
// configured timeout.
func deliver(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	timeout := time.Duration(Config.Timeout) * time.Second
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return errors.Wrap(err, "could not dial SMTP relay")
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return errors.Wrap(err, "could not set SMTP deadline")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "invalid SMTP relay address")
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "no greeting from SMTP relay")
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return errors.Wrap(err, "STARTTLS failed")
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return errors.Wrap(err, "SMTP authentication failed")
		}
	}
	if err := c.Mail(from); err != nil {
		return errors.Wrap(err, "MAIL FROM rejected")
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return errors.Wrapf(err, "RCPT TO %v rejected", rcpt)
		}
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "DATA rejected")
	}
	if _, err := w.Write(msg); err != nil {
		return errors.Wrap(err, "could not write message")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "message not accepted")
	}
	return c.Quit()
}

type smtpContact struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	AlertInterval int    `json:"alert-interval"` // seconds
}

func message(to string, a alert.Alert) []byte {
	return []byte(fmt.Sprintf("To: %v\r\n"+
		"Subject: %v between %v and %v\r\n\r\n"+
		"%v and %v are %.1f meters apart.\r\n",
		to, a.Kind, a.IDA, a.IDB, a.IDA, a.IDB, a.Distance))
}

// SendAlert emails the alert to the contact through the configured relay.
func (c smtpContact) SendAlert(a alert.Alert) error {
	var auth smtp.Auth
	if Config.Username != "" {
		auth = smtp.PlainAuth("", Config.Username, Config.Password, Config.Server)
	}
	host := Config.Server + ":" + Config.Port
	if err := sendMail(host, auth, Config.From, []string{c.Email}, message(c.Email, a)); err != nil {
		return errors.Wrapf(err, "could not send mail to %v", c.Email)
	}
	log.WithFields(logrus.Fields{
		"contact": c.Name,
		"kind":    a.Kind,
	}).Debug("sent alert mail")
	return nil
}

// GetName exposes the contact name.
func (c smtpContact) GetName() string {
	return c.Name
}

// Interval returns the configured repeat interval.
func (c smtpContact) Interval() time.Duration {
	return time.Duration(c.AlertInterval) * time.Second
}

func initialise(message json.RawMessage, ll logrus.Level) error {

	log = logger.New("smtpAlert", ll)

	var c RelayConfig
	if err := json.Unmarshal(message, &c); err != nil {
		return errors.Wrap(err, "could not parse SMTP config")
	}
	if c.Server == "" {
		return errors.New("missing server field")
	}
	if c.Port == "" {
		c.Port = "25"
	}
	if c.From == "" {
		c.From = "dtracker@localhost"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10
	}
	Config = c
	log.Debug("Successfully received SMTP config")
	return nil
}

func parseContact(message json.RawMessage) (contact alert.Contact, err error) {
	var S smtpContact
	if err := json.Unmarshal(message, &S); err != nil {
		return nil, errors.Wrap(err, "could not parse SMTP contact")
	}
	if S.Email == "" {
		return nil, errors.New("SMTP contact has no email address")
	}
	if S.Name == "" {
		S.Name = S.Email
	}
	return S, nil
}

func init() {
	log = logger.New("smtpAlert", logrus.WarnLevel)
	alert.RegisterConfigFunction("smtp", initialise)
	alert.RegisterContactFunction("smtp", parseContact)
}
