package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"TrustRegistry/internal/config"
	"TrustRegistry/internal/domain"
)

func testConfig() config.Config {
	cfg := config.Load()
	cfg.Database = config.DatabaseConfig{Driver: "memory"}
	cfg.HTTP.ListenAddr = "127.0.0.1:0"
	cfg.Scheduler.CrawlDelay = time.Hour
	cfg.Scheduler.CheckDelay = time.Hour
	cfg.Root.ListURL = "https://lotl.example/eu-lotl.xml"
	return cfg
}

func TestRunSeedsRootAndShutsDown(t *testing.T) {
	application, err := New(context.Background(), testConfig(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	var root domain.Agency
	for {
		root, err = application.store.FindRootAgency(context.Background())
		if err == nil {
			if root.TerritoryCode != "EU" || root.Type != domain.AgencyListOperator {
				t.Fatalf("unexpected root %+v", root)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("root agency was never seeded: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	docs, err := application.store.FindStillProvidedDocuments(context.Background(), root.ID, domain.DocumentStatusList)
	if err != nil {
		t.Fatalf("FindStillProvidedDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].URL != "https://lotl.example/eu-lotl.xml" {
		t.Fatalf("unexpected root documents %+v", docs)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "oracle"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected an error for an unknown driver")
	}
}
