package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/events"
)

type NotificationType string

const (
	NotificationEmail NotificationType = "email"
	NotificationSMS   NotificationType = "sms"
	NotificationPush  NotificationType = "push"
	NotificationSlack NotificationType = "slack"
)

type NotificationMessage struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Priority  int
	Metadata  map[string]string
	CreatedAt time.Time
}

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type SMSService interface {
	SendSMS(to, message string) error
}

type PushService interface {
	SendPush(deviceID, title, message string) error
}

type SlackService interface {
	SendMessage(channel, message string) error
}

// NotificationService turns domain events into customer and operator
// notifications. Messages queue onto a buffered channel and a worker pool
// drains it, so a slow gateway never backs up into the event bus.
type NotificationService struct {
	emailService EmailService
	smsService   SMSService
	pushService  PushService
	slackService SlackService
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewNotificationService(
	emailService EmailService,
	smsService SMSService,
	pushService PushService,
	slackService SlackService,
	workers int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}

	service := &NotificationService{
		emailService: emailService,
		smsService:   smsService,
		pushService:  pushService,
		slackService: slackService,
		messageQueue: make(chan NotificationMessage, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// EventHandler adapts the service to an event bus subscriber.
func (s *NotificationService) EventHandler() events.Handler {
	return func(ctx context.Context, event domain.Event) error {
		return s.HandleEvent(ctx, event)
	}
}

func (s *NotificationService) HandleEvent(ctx context.Context, event domain.Event) error {
	switch payload := event.Payload.(type) {
	case domain.TransactionPayload:
		return s.notifyTransaction(ctx, event.Type, payload)
	case domain.FraudAlertPayload:
		return s.notifyFraudAlert(ctx, payload)
	case domain.HoldPayload:
		return s.notifyHold(ctx, event.Type, payload)
	default:
		return nil
	}
}

func (s *NotificationService) notifyTransaction(ctx context.Context, eventType domain.EventType, payload domain.TransactionPayload) error {
	var subject, message string

	switch eventType {
	case domain.EventTransactionCompleted:
		subject = "Transaction Completed"
		message = fmt.Sprintf("Your %s of %s %s has completed successfully. Reference: %s.",
			payload.Type, payload.Amount, payload.Currency, payload.Reference)
	case domain.EventTransactionFailed:
		subject = "Transaction Failed"
		message = fmt.Sprintf("Your %s of %s %s has failed. Reason: %s.",
			payload.Type, payload.Amount, payload.Currency, payload.Reason)
	default:
		return nil
	}

	return s.enqueue(ctx, NotificationMessage{
		Type:      NotificationEmail,
		Recipient: "customer",
		Subject:   subject,
		Message:   message,
		Priority:  5,
		Metadata: map[string]string{
			"transaction_id": payload.TransactionID,
			"reference":      payload.Reference,
		},
		CreatedAt: time.Now().UTC(),
	})
}

func (s *NotificationService) notifyFraudAlert(ctx context.Context, payload domain.FraudAlertPayload) error {
	message := fmt.Sprintf(
		"Fraud Alert!\nAccount: %s\nAmount: %s\nRisk Score: %d\nRisk Level: %s\nType: %s",
		payload.AccountID, payload.Amount, payload.RiskScore, payload.RiskLevel, payload.FraudType,
	)

	notifications := []NotificationMessage{
		{
			Type:      NotificationSlack,
			Recipient: "#fraud-alerts",
			Subject:   fmt.Sprintf("Fraud Alert - %s", payload.RiskLevel),
			Message:   message,
			Priority:  10,
			Metadata: map[string]string{
				"fraud_event_id": payload.FraudEventID,
				"account_id":     payload.AccountID,
				"risk_level":     string(payload.RiskLevel),
			},
			CreatedAt: time.Now().UTC(),
		},
		{
			Type:      NotificationEmail,
			Recipient: "security@example.com",
			Subject:   fmt.Sprintf("Fraud Alert: %s - %s", payload.RiskLevel, payload.FraudEventID),
			Message:   message,
			Priority:  10,
			Metadata: map[string]string{
				"fraud_event_id": payload.FraudEventID,
				"risk_level":     string(payload.RiskLevel),
			},
			CreatedAt: time.Now().UTC(),
		},
	}

	for _, notification := range notifications {
		if err := s.enqueue(ctx, notification); err != nil {
			return err
		}
		s.logger.WarnContext(ctx, "Fraud alert notification queued",
			slog.String("type", string(notification.Type)),
			slog.String("fraud_event_id", payload.FraudEventID),
			slog.String("risk_level", string(payload.RiskLevel)))
	}

	return nil
}

func (s *NotificationService) notifyHold(ctx context.Context, eventType domain.EventType, payload domain.HoldPayload) error {
	var subject string
	switch eventType {
	case domain.EventHoldPlaced:
		subject = "Funds On Hold"
	case domain.EventHoldReleased:
		subject = "Hold Released"
	case domain.EventHoldExpired:
		subject = "Hold Expired"
	default:
		return nil
	}

	return s.enqueue(ctx, NotificationMessage{
		Type:      NotificationPush,
		Recipient: payload.AccountID,
		Subject:   subject,
		Message:   fmt.Sprintf("%s %s on account %s (%s).", subject, payload.Amount, payload.AccountID, payload.HoldType),
		Priority:  5,
		Metadata: map[string]string{
			"hold_id":    payload.HoldID,
			"account_id": payload.AccountID,
		},
		CreatedAt: time.Now().UTC(),
	})
}

func (s *NotificationService) enqueue(ctx context.Context, msg NotificationMessage) error {
	select {
	case s.messageQueue <- msg:
		s.logger.InfoContext(ctx, "Notification queued",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("subject", msg.Subject))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *NotificationService) processNotification(msg NotificationMessage, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Type {
	case NotificationEmail:
		err = s.emailService.SendEmail(msg.Recipient, msg.Subject, msg.Message)
	case NotificationSMS:
		err = s.smsService.SendSMS(msg.Recipient, msg.Message)
	case NotificationPush:
		err = s.pushService.SendPush(msg.Recipient, msg.Subject, msg.Message)
	case NotificationSlack:
		err = s.slackService.SendMessage(msg.Recipient, msg.Message)
	default:
		err = fmt.Errorf("unknown notification type: %s", msg.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
		return
	}
	s.logger.Info("Notification sent",
		slog.String("type", string(msg.Type)),
		slog.String("recipient", msg.Recipient),
		slog.Int("worker_id", workerID),
		slog.Duration("duration", duration))
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type MockEmailService struct {
	mu         sync.Mutex
	SentEmails []struct {
		To      string
		Subject string
		Body    string
	}
}

func (m *MockEmailService) SendEmail(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, struct {
		To      string
		Subject string
		Body    string
	}{to, subject, body})
	return nil
}

type MockSMSService struct {
	mu      sync.Mutex
	SentSMS []struct {
		To      string
		Message string
	}
}

func (m *MockSMSService) SendSMS(to, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentSMS = append(m.SentSMS, struct {
		To      string
		Message string
	}{to, message})
	return nil
}

type MockPushService struct {
	mu       sync.Mutex
	SentPush []struct {
		DeviceID string
		Title    string
		Message  string
	}
}

func (m *MockPushService) SendPush(deviceID, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentPush = append(m.SentPush, struct {
		DeviceID string
		Title    string
		Message  string
	}{deviceID, title, message})
	return nil
}

type MockSlackService struct {
	mu       sync.Mutex
	Messages []struct {
		Channel string
		Message string
	}
}

func (m *MockSlackService) SendMessage(channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, struct {
		Channel string
		Message string
	}{channel, message})
	return nil
}
