// Package notification alerts the support team about new chat sessions and
// system problems over email and SMS.
package notification

import (
	"context"
	"fmt"
	"html"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/real-rm/goconfig"
	"github.com/real-rm/golog"
	"github.com/real-rm/gomail"
	"github.com/real-rm/gomongo"
	"github.com/real-rm/gosms"

	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/store"
	"github.com/real-rm/supportchat/internal/util"
)

// Service handles sending email and SMS notifications
type Service struct {
	mailer       *gomail.Mailer
	smsSender    *gosms.SMSSender
	logger       *golog.Logger
	config       *goconfig.ConfigAccessor
	rateLimiter  *RateLimiter
	dashboardURL string // Dashboard URL for chat links in alert emails
	mu           sync.RWMutex
}

// RateLimiter prevents notification flooding
type RateLimiter struct {
	events map[string][]time.Time
	window time.Duration
	limit  int
	mu     sync.RWMutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	return &RateLimiter{
		events: make(map[string][]time.Time),
		window: window,
		limit:  limit,
	}
}

// Allow checks if an event is allowed based on rate limiting
func (rl *RateLimiter) Allow(eventKey string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	// Cap map growth: reject new keys when at capacity
	const maxTrackedEvents = 100000
	events := rl.events[eventKey]
	if events == nil && len(rl.events) >= maxTrackedEvents {
		return false
	}

	// Filter out old events
	var recentEvents []time.Time
	for _, t := range events {
		if t.After(cutoff) {
			recentEvents = append(recentEvents, t)
		}
	}

	// Remove keys with no recent events to prevent unbounded map growth
	if len(recentEvents) == 0 && len(events) > 0 {
		delete(rl.events, eventKey)
	}

	// Check if we're under the limit
	if len(recentEvents) >= rl.limit {
		rl.events[eventKey] = recentEvents
		return false
	}

	// Add this event
	recentEvents = append(recentEvents, now)
	rl.events[eventKey] = recentEvents

	return true
}

// NewService creates a new notification service
func NewService(
	logger *golog.Logger,
	config *goconfig.ConfigAccessor,
	mongo *gomongo.Mongo,
) (*Service, error) {
	// Initialize gomail
	mailer, err := gomail.GetSendMailObj(gomail.MailerOptions{
		Logger: logger,
		Config: config,
		Mongo:  mongo, // Enable email logging
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gomail: %w", err)
	}

	// Initialize gosms
	// Priority: Environment variables > Config file
	accountSID := os.Getenv("SMS_ACCOUNT_SID")
	if accountSID == "" {
		accountSID, err = config.ConfigString("sms.accountSID")
		if err != nil {
			logger.Warn("SMS account SID not configured", "error", err)
			accountSID = ""
		}
	}

	authToken := os.Getenv("SMS_AUTH_TOKEN")
	if authToken == "" {
		authToken, err = config.ConfigString("sms.authToken")
		if err != nil {
			logger.Warn("SMS auth token not configured", "error", err)
			authToken = ""
		}
	}

	var smsSender *gosms.SMSSender
	if accountSID != "" && authToken != "" {
		twilioEngine, err := gosms.NewTwilioEngine(accountSID, authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Twilio engine: %w", err)
		}

		smsSender, err = gosms.NewSMSSender(twilioEngine)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SMS sender: %w", err)
		}
	} else {
		logger.Warn("SMS not configured - SMS notifications will be skipped")
	}

	// One alert per chat session within the cooldown window
	rateLimiter := NewRateLimiter(constants.AlertCooldown, 1)

	// Read dashboard URL: environment variable takes precedence over config
	dashboardURL := os.Getenv("DASHBOARD_URL")
	if dashboardURL == "" {
		dashboardURL, _ = config.ConfigString("notification.dashboardURL")
	}

	return &Service{
		mailer:       mailer,
		smsSender:    smsSender,
		logger:       logger,
		config:       config,
		rateLimiter:  rateLimiter,
		dashboardURL: dashboardURL,
	}, nil
}

// NotifyNewChat alerts the support team that a visitor opened a new chat
// session. Delivery problems are logged, never surfaced: the visitor's join
// must not depend on the alert.
func (ns *Service) NotifyNewChat(chat *store.Chat) {
	eventKey := fmt.Sprintf("new_chat:%s", chat.SessionID)

	// No else needed: early return pattern (guard clause)
	if !ns.rateLimiter.Allow(eventKey) {
		ns.logger.Warn("New chat notification rate limited", "session_id", chat.SessionID)
		return
	}

	adminEmails, err := ns.getAdminEmails()
	if err != nil {
		util.LogError(ns.logger, "notification", "resolve admin emails", err,
			"session_id", chat.SessionID)
		adminEmails = nil
	}

	adminPhones, err := ns.getAdminPhones()
	if err != nil {
		util.LogError(ns.logger, "notification", "resolve admin phones", err,
			"session_id", chat.SessionID)
		adminPhones = nil
	}

	// Send email notification
	if len(adminEmails) > 0 {
		msg := &gomail.EmailMessage{
			To:      adminEmails,
			Subject: "New chat session waiting",
			HTML:    buildNewChatHTML(chat, ns.dashboardURL),
			Text: fmt.Sprintf("New chat session - Session: %s, Visitor IP: %s, Time: %s",
				chat.SessionID, chat.UserIP, time.Now().Format(time.RFC3339)),
		}

		// Use SendWithRetry for automatic failover
		engines := ns.mailer.GetEngineNames()
		if err := ns.mailer.SendWithRetry(engines, msg); err != nil {
			util.LogError(ns.logger, "notification", "send new chat email", err,
				"session_id", chat.SessionID)
		} else {
			ns.logger.Info("New chat email sent",
				"session_id", chat.SessionID,
				"recipients", len(adminEmails))
		}
	}

	// Send SMS notification
	if ns.smsSender != nil && len(adminPhones) > 0 {
		fromNumber, err := ns.config.ConfigString("sms.fromNumber")
		if err != nil {
			ns.logger.Warn("SMS from number not configured", "error", err)
			fromNumber = ""
		}

		message := fmt.Sprintf("New chat session waiting for a reply. Session: %s", chat.SessionID)

		for _, phone := range adminPhones {
			opt := gosms.SendOption{
				To:      phone,
				From:    fromNumber,
				Message: message,
			}

			if err := ns.smsSender.Send(opt); err != nil {
				util.LogError(ns.logger, "notification", "send new chat SMS", err, "phone", phone)
				// Continue to next phone number
			} else {
				ns.logger.Info("New chat SMS sent", "phone", phone)
			}
		}
	}
}

// SendSystemAlert sends a general system alert to the support team
func (ns *Service) SendSystemAlert(subject, message string) error {
	eventKey := fmt.Sprintf("system_alert:%s", subject)

	// Check rate limiting
	if !ns.rateLimiter.Allow(eventKey) {
		ns.logger.Warn("System alert notification rate limited", "subject", subject)
		return nil
	}

	// Get admin emails from config
	adminEmails, err := ns.getAdminEmails()
	if err != nil {
		return fmt.Errorf("failed to get admin emails: %w", err)
	}

	if len(adminEmails) == 0 {
		ns.logger.Warn("No admin emails configured for system alert")
		return nil
	}

	msg := &gomail.EmailMessage{
		To:      adminEmails,
		Subject: subject,
		HTML:    fmt.Sprintf("<p>%s</p><p><em>Time: %s</em></p>", html.EscapeString(message), time.Now().Format(time.RFC3339)),
		Text:    fmt.Sprintf("%s\nTime: %s", message, time.Now().Format(time.RFC3339)),
	}

	// Use SendMail with first available engine for non-critical alerts
	engines := ns.mailer.GetEngineNames()
	if len(engines) == 0 {
		return fmt.Errorf("no mail engines configured")
	}

	if err := ns.mailer.SendMail(engines[0], msg); err != nil {
		util.LogError(ns.logger, "notification", "send system alert email", err, "subject", subject)
		return fmt.Errorf("failed to send email: %w", err)
	}

	ns.logger.Info("System alert email sent", "subject", subject, "recipients", len(adminEmails))
	return nil
}

// getAdminEmails retrieves admin email addresses from config
func (ns *Service) getAdminEmails() ([]string, error) {
	// Try to get from notification.adminEmails array
	adminEmailsStr, err := ns.config.ConfigString("notification.adminEmails")
	if err == nil && adminEmailsStr != "" {
		// Parse as comma-separated list
		emails := []string{}
		for _, email := range splitAndTrim(adminEmailsStr) {
			if email != "" {
				emails = append(emails, email)
			}
		}
		if len(emails) > 0 {
			return emails, nil
		}
	}

	// Fallback to mail.adminEmail
	adminEmail, err := ns.config.ConfigString("mail.adminEmail")
	if err != nil {
		return nil, err
	}

	if adminEmail == "" {
		return []string{}, nil
	}

	return []string{adminEmail}, nil
}

// getAdminPhones retrieves admin phone numbers from config
func (ns *Service) getAdminPhones() ([]string, error) {
	adminPhonesStr, err := ns.config.ConfigString("notification.adminPhones")
	if err != nil {
		// Not configured is okay
		return []string{}, nil
	}

	if adminPhonesStr == "" {
		return []string{}, nil
	}

	// Parse as comma-separated list
	phones := []string{}
	for _, phone := range splitAndTrim(adminPhonesStr) {
		if phone != "" {
			phones = append(phones, phone)
		}
	}

	return phones, nil
}

// buildNewChatHTML builds the HTML body for new chat alert emails.
// If dashboardURL is empty, no link is rendered (safe fallback).
func buildNewChatHTML(chat *store.Chat, dashboardURL string) string {
	timestamp := time.Now().Format(time.RFC3339)
	safeSessionID := html.EscapeString(chat.SessionID)
	safeUserIP := html.EscapeString(chat.UserIP)
	safeUserAgent := html.EscapeString(chat.UserAgent)
	linkSection := "<p>Please open the dashboard to reply.</p>"
	if dashboardURL != "" {
		safeDashboardURL := html.EscapeString(dashboardURL)
		linkSection = fmt.Sprintf(`<p><a href="%s/%s">Open Chat</a></p>`, safeDashboardURL, safeSessionID)
	}
	return fmt.Sprintf(`
		<h2>New Chat Session</h2>
		<p>A visitor started a new chat.</p>
		<ul>
			<li><strong>Session ID:</strong> %s</li>
			<li><strong>Visitor IP:</strong> %s</li>
			<li><strong>User Agent:</strong> %s</li>
			<li><strong>Time:</strong> %s</li>
		</ul>
		%s
	`, safeSessionID, safeUserIP, safeUserAgent, timestamp, linkSection)
}

// splitAndTrim splits a string by comma and trims whitespace from each part
func splitAndTrim(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}

// ValidateEmails validates a list of email addresses using gomail's validation
func (ns *Service) ValidateEmails(ctx context.Context, emails []string) ([]string, error) {
	return ns.mailer.GetValidatedEmails(ctx, emails)
}
