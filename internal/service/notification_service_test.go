package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"bankcore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFraudAlertNotifiesSlackAndSecurity(t *testing.T) {
	email := &MockEmailService{}
	slack := &MockSlackService{}
	svc := NewNotificationService(email, &MockSMSService{}, &MockPushService{}, slack, 2, testLogger())
	defer svc.Shutdown(context.Background())

	event := domain.NewEvent(domain.EventFraudAlert, domain.FraudAlertPayload{
		FraudEventID: "fe-1",
		AccountID:    "acct-1",
		CustomerID:   "cust-1",
		RiskLevel:    domain.RiskHigh,
		RiskScore:    62,
		FraudType:    "large-amount",
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	waitFor(t, func() bool {
		slack.mu.Lock()
		defer slack.mu.Unlock()
		return len(slack.Messages) == 1
	})
	waitFor(t, func() bool {
		email.mu.Lock()
		defer email.mu.Unlock()
		return len(email.SentEmails) == 1
	})

	slack.mu.Lock()
	defer slack.mu.Unlock()
	if slack.Messages[0].Channel != "#fraud-alerts" {
		t.Errorf("channel = %s, want #fraud-alerts", slack.Messages[0].Channel)
	}
	if !strings.Contains(slack.Messages[0].Message, "Risk Score: 62") {
		t.Errorf("message %q missing risk score", slack.Messages[0].Message)
	}
}

func TestCompletedTransactionEmailsCustomer(t *testing.T) {
	email := &MockEmailService{}
	svc := NewNotificationService(email, &MockSMSService{}, &MockPushService{}, &MockSlackService{}, 2, testLogger())
	defer svc.Shutdown(context.Background())

	event := domain.NewEvent(domain.EventTransactionCompleted, domain.TransactionPayload{
		TransactionID: "tx-1",
		Reference:     "TXN-20260901-abcd",
		Type:          domain.TypeTransfer,
		Status:        domain.StatusCompleted,
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	waitFor(t, func() bool {
		email.mu.Lock()
		defer email.mu.Unlock()
		return len(email.SentEmails) == 1
	})

	email.mu.Lock()
	defer email.mu.Unlock()
	if email.SentEmails[0].Subject != "Transaction Completed" {
		t.Errorf("subject = %s, want Transaction Completed", email.SentEmails[0].Subject)
	}
	if !strings.Contains(email.SentEmails[0].Body, "TXN-20260901-abcd") {
		t.Errorf("body %q missing reference", email.SentEmails[0].Body)
	}
}

func TestUnhandledEventsAreIgnored(t *testing.T) {
	email := &MockEmailService{}
	svc := NewNotificationService(email, &MockSMSService{}, &MockPushService{}, &MockSlackService{}, 1, testLogger())
	defer svc.Shutdown(context.Background())

	event := domain.NewEvent(domain.EventAccountCreated, domain.AccountCreatedPayload{AccountID: "acct-1"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	email.mu.Lock()
	defer email.mu.Unlock()
	if len(email.SentEmails) != 0 {
		t.Errorf("emails = %d, want none for account events", len(email.SentEmails))
	}
}
