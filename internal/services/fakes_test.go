package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/notify"
	"github.com/fitmarket/api/internal/payments"
	"github.com/fitmarket/api/internal/platform/blobstore"
	"github.com/fitmarket/api/internal/repositories"
)

type fakeRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *fakeRepoError) Error() string       { return e.msg }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return e.conflict }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavailable }

func errNotFound(what string) error { return &fakeRepoError{msg: what + " not found", notFound: true} }

var errUnavailable = &fakeRepoError{msg: "backend unavailable", unavailable: true}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDraftRepo struct {
	mu        sync.Mutex
	seq       int
	drafts    map[string]domain.TempTrainer
	insertErr error
	deleteErr error
	deleted   []string
}

func newFakeDraftRepo() *fakeDraftRepo {
	return &fakeDraftRepo{drafts: map[string]domain.TempTrainer{}}
}

func (r *fakeDraftRepo) Insert(_ context.Context, draft domain.TempTrainer) (domain.TempTrainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return domain.TempTrainer{}, r.insertErr
	}
	r.seq++
	draft.ID = fmt.Sprintf("draft-%d", r.seq)
	r.drafts[draft.ID] = draft
	return draft, nil
}

func (r *fakeDraftRepo) FindByID(_ context.Context, id string) (domain.TempTrainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[id]
	if !ok {
		return domain.TempTrainer{}, errNotFound("draft")
	}
	return draft, nil
}

func (r *fakeDraftRepo) UpdateContent(_ context.Context, id string, content domain.TrainerContent, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[id]
	if !ok {
		return errNotFound("draft")
	}
	draft.Content = content
	draft.UpdatedAt = updatedAt
	r.drafts[id] = draft
	return nil
}

func (r *fakeDraftRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.drafts, id)
	r.deleted = append(r.deleted, id)
	return nil
}

// fakeTrainerRepo serialises Promote under one lock, which gives the same
// single-winner outcome as the Firestore transaction.
type fakeTrainerRepo struct {
	mu         sync.Mutex
	drafts     *fakeDraftRepo
	trainers   map[string]domain.Trainer
	markers    map[string]domain.PromotionMarker
	promoteErr error
}

func newFakeTrainerRepo(drafts *fakeDraftRepo) *fakeTrainerRepo {
	return &fakeTrainerRepo{
		drafts:   drafts,
		trainers: map[string]domain.Trainer{},
		markers:  map[string]domain.PromotionMarker{},
	}
}

func (r *fakeTrainerRepo) Promote(ctx context.Context, draftID, ref string, at time.Time, build repositories.PromoteBuilder) (domain.Trainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.promoteErr != nil {
		return domain.Trainer{}, r.promoteErr
	}
	if marker, ok := r.markers[draftID]; ok {
		return domain.Trainer{}, &repositories.PromotionExistsError{Marker: marker}
	}
	draft, err := r.drafts.FindByID(ctx, draftID)
	if err != nil {
		return domain.Trainer{}, err
	}
	trainer, err := build(draft)
	if err != nil {
		return domain.Trainer{}, err
	}
	r.markers[draftID] = domain.PromotionMarker{
		TempID:           draftID,
		TrainerID:        trainer.ID,
		PaymentReference: ref,
		PromotedAt:       at,
		TokenDigest:      domain.DigestToken(draft.Token),
	}
	r.trainers[trainer.ID] = trainer
	return trainer, nil
}

func (r *fakeTrainerRepo) FindPromotion(_ context.Context, draftID string) (domain.PromotionMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marker, ok := r.markers[draftID]
	if !ok {
		return domain.PromotionMarker{}, errNotFound("promotion")
	}
	return marker, nil
}

func (r *fakeTrainerRepo) FindByID(_ context.Context, id string) (domain.Trainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trainer, ok := r.trainers[id]
	if !ok {
		return domain.Trainer{}, errNotFound("trainer")
	}
	return trainer, nil
}

func (r *fakeTrainerRepo) ListActive(_ context.Context, filter repositories.TrainerListFilter) (domain.CursorPage[domain.Trainer], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Trainer
	for _, trainer := range r.trainers {
		if trainer.Listed() {
			items = append(items, trainer)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if len(items) > filter.Pagination.PageSize {
		items = items[:filter.Pagination.PageSize]
	}
	return domain.CursorPage[domain.Trainer]{Items: items}, nil
}

func (r *fakeTrainerRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trainers)
}

type fakeLeadRepo struct {
	mu         sync.Mutex
	seq        int
	leads      map[string]domain.Lead
	trainers   map[string]domain.Trainer
	convertErr error
	lastFilter repositories.LeadListFilter
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: map[string]domain.Lead{}, trainers: map[string]domain.Trainer{}}
}

func (r *fakeLeadRepo) Insert(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	lead.ID = fmt.Sprintf("lead-%d", r.seq)
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *fakeLeadRepo) FindByID(_ context.Context, id string) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, errNotFound("lead")
	}
	return lead, nil
}

func (r *fakeLeadRepo) List(_ context.Context, filter repositories.LeadListFilter) (domain.CursorPage[domain.Lead], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	var items []domain.Lead
	for _, lead := range r.leads {
		if filter.Status == "" || lead.Status == filter.Status {
			items = append(items, lead)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Lead]{Items: items}, nil
}

func (r *fakeLeadRepo) Convert(_ context.Context, leadID string, at time.Time, build repositories.ConvertBuilder) (domain.Trainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.convertErr != nil {
		return domain.Trainer{}, r.convertErr
	}
	lead, ok := r.leads[leadID]
	if !ok {
		return domain.Trainer{}, errNotFound("lead")
	}
	trainer, err := build(lead)
	if err != nil {
		return domain.Trainer{}, err
	}
	r.trainers[trainer.ID] = trainer
	lead.ConvertedToTrainer = true
	lead.TrainerID = trainer.ID
	lead.Status = domain.LeadStatusConverted
	lead.ConvertedAt = &at
	lead.UpdatedAt = at
	r.leads[leadID] = lead
	return trainer, nil
}

type fakeAliasRepo struct {
	mu      sync.Mutex
	aliases map[string]string
}

func newFakeAliasRepo() *fakeAliasRepo { return &fakeAliasRepo{aliases: map[string]string{}} }

func (r *fakeAliasRepo) Resolve(_ context.Context, kind domain.ContentKind, slug string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.aliases[string(kind)+":"+slug]
	if !ok {
		return "", errNotFound("alias")
	}
	return target, nil
}

func (r *fakeAliasRepo) Save(_ context.Context, kind domain.ContentKind, alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[string(kind)+":"+alias] = target
	return nil
}

// flakyBlobStore wraps the memory store and fails selected operations.
type flakyBlobStore struct {
	*blobstore.MemoryStore
	deleteErr error
	putErr    error
	// hidden paths are stored but left out of List, like a lagging listing.
	hidden map[string]bool
}

func (s *flakyBlobStore) List(ctx context.Context, prefix string) ([]blobstore.Object, error) {
	objects, err := s.MemoryStore.List(ctx, prefix)
	if err != nil || len(s.hidden) == 0 {
		return objects, err
	}
	out := objects[:0]
	for _, obj := range objects {
		if !s.hidden[obj.Path] {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (s *flakyBlobStore) Put(ctx context.Context, path string, data []byte, opts blobstore.PutOptions) (blobstore.Object, error) {
	if s.putErr != nil {
		return blobstore.Object{}, s.putErr
	}
	return s.MemoryStore.Put(ctx, path, data, opts)
}

func (s *flakyBlobStore) Delete(ctx context.Context, path string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, path)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, paths ...string) error {
	r.mu.Lock()
	r.paths = append(r.paths, paths...)
	r.mu.Unlock()
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	created   []notify.DraftCreated
	activated []notify.TrainerActivated
	err       error
}

func (n *recordingNotifier) DraftCreated(_ context.Context, msg notify.DraftCreated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, msg)
	return n.err
}

func (n *recordingNotifier) TrainerActivated(_ context.Context, msg notify.TrainerActivated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activated = append(n.activated, msg)
	return n.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

type fakeCheckout struct {
	requests []payments.CheckoutRequest
	session  payments.CheckoutSession
	err      error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	f.requests = append(f.requests, req)
	return f.session, f.err
}

type logEntry struct {
	event  string
	fields map[string]any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) Log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{event: event, fields: fields})
	l.mu.Unlock()
}

func (l *captureLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.event == event {
			return true
		}
	}
	return false
}
