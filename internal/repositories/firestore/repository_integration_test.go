//go:build integration

package firestore

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	pconfig "github.com/fitmarket/api/internal/platform/config"
	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
	"github.com/fitmarket/api/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	provider, err := pfirestore.NewProvider(ctx, pconfig.FirestoreConfig{ProjectID: "fitmarket-repos", EmulatorHost: host})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestPromoteConcurrentCallsCreateOneTrainer(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	drafts, _ := NewTrainerDraftRepository(provider)
	trainers, _ := NewTrainerRepository(provider)

	now := time.Now().UTC()
	draft, err := drafts.Insert(ctx, domain.TempTrainer{
		Form:      domain.TrainerForm{Name: "Anna", Email: "anna@example.com", City: "Berlin", District: "Mitte", Specialty: "Yoga"},
		Token:     strings.Repeat("a", 48),
		Status:    domain.TrainerStatusTemp,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("insert draft: %v", err)
	}

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  []string
		conflict int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "trn_test" + string(rune('a'+i))
			trainer, err := trainers.Promote(ctx, draft.ID, "pi_1", now, func(d domain.TempTrainer) (domain.Trainer, error) {
				activated := now
				return domain.Trainer{ID: id, Form: d.Form, Status: domain.TrainerStatusActive, Active: true, Paid: true, ActivatedAt: &activated, PromotedFrom: d.ID, CreatedAt: now, UpdatedAt: now}, nil
			})
			mu.Lock()
			defer mu.Unlock()
			var exists *repositories.PromotionExistsError
			switch {
			case err == nil:
				created = append(created, trainer.ID)
			case errors.As(err, &exists):
				conflict++
			default:
				t.Errorf("promote: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(created) != 1 || conflict != workers-1 {
		t.Fatalf("expected exactly one promotion, got created=%v conflicts=%d", created, conflict)
	}
	marker, err := trainers.FindPromotion(ctx, draft.ID)
	if err != nil {
		t.Fatalf("find promotion: %v", err)
	}
	if marker.TrainerID != created[0] {
		t.Fatalf("marker points to %s, want %s", marker.TrainerID, created[0])
	}
}

func TestConvertLeadIsAtomic(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	leads, _ := NewLeadRepository(provider)
	trainers, _ := NewTrainerRepository(provider)

	now := time.Now().UTC()
	lead, err := leads.Insert(ctx, domain.Lead{Name: "Max", Email: "max@example.com", City: "Hamburg", Status: domain.LeadStatusNew, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("insert lead: %v", err)
	}

	abort := errors.New("abort")
	if _, err := leads.Convert(ctx, lead.ID, now, func(domain.Lead) (domain.Trainer, error) { return domain.Trainer{}, abort }); !errors.Is(err, abort) {
		t.Fatalf("expected builder error, got %v", err)
	}
	if got, _ := leads.FindByID(ctx, lead.ID); got.ConvertedToTrainer {
		t.Fatal("lead must be untouched after aborted conversion")
	}

	trainerID := "trn_lead" + lead.ID
	if _, err := leads.Convert(ctx, lead.ID, now, func(l domain.Lead) (domain.Trainer, error) {
		return domain.Trainer{ID: trainerID, Form: domain.TrainerForm{Name: l.Name, Email: l.Email}, Status: domain.TrainerStatusWebsiteCreated, LeadID: l.ID, CreatedAt: now, UpdatedAt: now}, nil
	}); err != nil {
		t.Fatalf("convert: %v", err)
	}

	got, err := leads.FindByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("find lead: %v", err)
	}
	if !got.ConvertedToTrainer || got.TrainerID != trainerID || got.Status != domain.LeadStatusConverted {
		t.Fatalf("lead not converted: %+v", got)
	}
	if _, err := trainers.FindByID(ctx, trainerID); err != nil {
		t.Fatalf("trainer missing: %v", err)
	}
}
