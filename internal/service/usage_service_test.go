package service

import (
	"context"
	"testing"
	"time"
)

func TestUsageAlertsOncePerMonth(t *testing.T) {
	repo, mailer := newMemUsageRepo(), &recordingMailer{}
	svc := NewUsageService(repo, mailer, 1000)
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	svc.(*usageService).now = func() time.Time { return now }
	ctx := context.Background()

	if err := svc.Record(ctx, 700); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(mailer.subjects) != 0 {
		t.Fatalf("no alert expected below 80%%")
	}
	if err := svc.Record(ctx, 150); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := svc.Record(ctx, 300); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(mailer.subjects) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(mailer.subjects))
	}

	report, err := svc.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Month != "2025-05" || report.CharactersUsed != 1150 || report.Remaining != 0 || !report.OverLimit {
		t.Errorf("unexpected report %+v", report)
	}

	now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := svc.Record(ctx, 900); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(mailer.subjects) != 2 {
		t.Errorf("a new month should alert again, got %d alerts", len(mailer.subjects))
	}
}
