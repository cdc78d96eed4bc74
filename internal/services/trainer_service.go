package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/notify"
	"github.com/fitmarket/api/internal/payments"
	"github.com/fitmarket/api/internal/platform/pagination"
	"github.com/fitmarket/api/internal/platform/textutil"
	"github.com/fitmarket/api/internal/repositories"
)

const (
	defaultDraftTTL        = 24 * time.Hour
	checkoutProductName    = "Trainer profile activation"
	checkoutDedupeWindow   = 10 * time.Minute
	checkoutMetadataDraft  = "tempTrainerId"
	paymentProviderDefault = "stripe"
)

var (
	// ErrTrainerNotFound is returned when a draft or listed trainer does not exist.
	ErrTrainerNotFound = errors.New("trainer: not found")
	// ErrTrainerTokenMismatch is returned when the preview token does not match the draft.
	ErrTrainerTokenMismatch = errors.New("trainer: token mismatch")
	// ErrTrainerExpired is returned for writes to a draft past its expiry.
	ErrTrainerExpired = errors.New("trainer: preview expired")
	// ErrTrainerAlreadyPromoted is matched by *AlreadyPromotedError.
	ErrTrainerAlreadyPromoted = errors.New("trainer: draft already promoted")
	// ErrTrainerCreateFailed wraps storage failures while creating a draft.
	ErrTrainerCreateFailed = errors.New("trainer: failed to create preview")
	// ErrTrainerUnavailable wraps other storage failures.
	ErrTrainerUnavailable = errors.New("trainer: storage unavailable")
	// ErrTrainerCheckoutUnavailable is returned when no checkout session could be created.
	ErrTrainerCheckoutUnavailable = errors.New("trainer: checkout unavailable")
)

// AlreadyPromotedError reports the trainer that an earlier promotion of the
// draft created.
type AlreadyPromotedError struct {
	DraftID   string
	TrainerID string
}

func (e *AlreadyPromotedError) Error() string {
	return fmt.Sprintf("trainer: draft %s already promoted to %s", e.DraftID, e.TrainerID)
}

// Is makes errors.Is(err, ErrTrainerAlreadyPromoted) hold.
func (e *AlreadyPromotedError) Is(target error) bool {
	return target == ErrTrainerAlreadyPromoted
}

// EventPublisher hands domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// CheckoutSettings configures the activation payment.
type CheckoutSettings struct {
	PriceID  string
	Amount   int64
	Currency string
}

// TrainerServiceDeps wires the trainer lifecycle service.
type TrainerServiceDeps struct {
	Drafts        repositories.TrainerDraftRepository
	Trainers      repositories.TrainerRepository
	Payments      payments.Provider
	Notifier      notify.Notifier
	Events        EventPublisher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	PublicBaseURL string
	CountryCode   string
	DraftTTL      time.Duration
	Checkout      CheckoutSettings

	TokenGenerator func() (string, error)
	IDGenerator    func() string
}

type trainerService struct {
	drafts      repositories.TrainerDraftRepository
	trainers    repositories.TrainerRepository
	payments    payments.Provider
	notifier    notify.Notifier
	events      EventPublisher
	now         func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
	baseURL     string
	countryCode string
	ttl         time.Duration
	checkout    CheckoutSettings
	newToken    func() (string, error)
	newID       func() string
}

var _ TrainerService = (*trainerService)(nil)

// NewTrainerService constructs the trainer lifecycle service. Payments, the
// notifier and the event publisher are optional.
func NewTrainerService(deps TrainerServiceDeps) (TrainerService, error) {
	if deps.Drafts == nil {
		return nil, errors.New("trainer service: draft repository is required")
	}
	if deps.Trainers == nil {
		return nil, errors.New("trainer service: trainer repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	ttl := deps.DraftTTL
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	countryCode := strings.TrimSpace(deps.CountryCode)
	if countryCode == "" {
		countryCode = textutil.DefaultCountryCode
	}
	newToken := deps.TokenGenerator
	if newToken == nil {
		newToken = newDraftToken
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = newTrainerID
	}

	return &trainerService{
		drafts:   deps.Drafts,
		trainers: deps.Trainers,
		payments: deps.Payments,
		notifier: notifier,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:      logger,
		baseURL:     strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		countryCode: countryCode,
		ttl:         ttl,
		checkout:    deps.Checkout,
		newToken:    newToken,
		newID:       newID,
	}, nil
}

type trainerFormInput struct {
	Name           string   `json:"name" validate:"required,max=120"`
	Email          string   `json:"email" validate:"required,email,max=254"`
	Phone          string   `json:"phone" validate:"omitempty,max=40"`
	City           string   `json:"city" validate:"required,max=80"`
	District       string   `json:"district" validate:"required,max=80"`
	Specialty      string   `json:"specialty" validate:"required,max=120"`
	Bio            string   `json:"bio" validate:"omitempty,min=20,max=500"`
	Certifications []string `json:"certifications" validate:"max=20,dive,max=120"`
	Services       []string `json:"services" validate:"max=20,dive,max=120"`
}

func (s *trainerService) Create(ctx context.Context, form TrainerForm) (CreateDraftResult, error) {
	input := trainerFormInput{
		Name:           sanitizeText(form.Name),
		Email:          strings.TrimSpace(form.Email),
		Phone:          strings.TrimSpace(form.Phone),
		City:           sanitizeText(form.City),
		District:       sanitizeText(form.District),
		Specialty:      sanitizeText(form.Specialty),
		Bio:            sanitizeText(form.Bio),
		Certifications: sanitizeList(form.Certifications),
		Services:       sanitizeList(form.Services),
	}
	if err := validateStruct(input); err != nil {
		return CreateDraftResult{}, err
	}

	token, err := s.newToken()
	if err != nil {
		return CreateDraftResult{}, fmt.Errorf("%w: %w", ErrTrainerCreateFailed, err)
	}

	clean := TrainerForm{
		Name:           input.Name,
		Email:          input.Email,
		Phone:          textutil.NormalizePhone(input.Phone, s.countryCode),
		City:           input.City,
		District:       input.District,
		Specialty:      input.Specialty,
		Bio:            input.Bio,
		Certifications: input.Certifications,
		Services:       input.Services,
	}
	now := s.now()
	draft, err := s.drafts.Insert(ctx, TempTrainer{
		Form:      clean,
		Content:   synthesizeContent(clean, ""),
		Token:     token,
		Status:    domain.TrainerStatusTemp,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		s.logger(ctx, "trainer.create_failed", map[string]any{"error": err.Error()})
		return CreateDraftResult{}, fmt.Errorf("%w: %w", ErrTrainerCreateFailed, err)
	}

	preview := s.previewURL(draft.ID, draft.Token)
	if err := s.notifier.DraftCreated(ctx, notify.DraftCreated{
		To:         draft.Form.Email,
		Name:       draft.Form.Name,
		PreviewURL: preview,
		ExpiresAt:  draft.ExpiresAt,
	}); err != nil {
		s.logger(ctx, "trainer.notify_failed", map[string]any{
			"draftID": draft.ID,
			"kind":    "draft_created",
			"error":   err.Error(),
		})
	}

	return CreateDraftResult{Draft: draft, PreviewURL: preview}, nil
}

func (s *trainerService) Read(ctx context.Context, draftID, token string) (DraftView, error) {
	draft, err := s.authorize(ctx, draftID, token)
	if err != nil {
		return DraftView{}, err
	}
	return DraftView{Draft: draft, Expired: draft.Expired(s.now())}, nil
}

func (s *trainerService) Edit(ctx context.Context, draftID, token string, patch TrainerContent) (TempTrainer, error) {
	draft, err := s.authorize(ctx, draftID, token)
	if err != nil {
		return TempTrainer{}, err
	}
	now := s.now()
	if draft.Expired(now) {
		return TempTrainer{}, ErrTrainerExpired
	}

	content := mergeContent(draft.Content, patch)
	if err := s.drafts.UpdateContent(ctx, draft.ID, content, now); err != nil {
		return TempTrainer{}, s.translateRepoError(err)
	}
	draft.Content = content
	draft.UpdatedAt = now
	return draft, nil
}

// Promote turns a paid draft into a listed trainer. The permanent record and
// the promotion marker commit together; the draft is deleted only afterwards.
func (s *trainerService) Promote(ctx context.Context, draftID string, confirmation PaymentConfirmation) (Trainer, error) {
	draftID = strings.TrimSpace(draftID)
	if draftID == "" {
		return Trainer{}, ErrTrainerNotFound
	}
	now := s.now()
	trainerID := s.newID()

	trainer, err := s.trainers.Promote(ctx, draftID, confirmation.Reference, now, func(draft TempTrainer) (Trainer, error) {
		if draft.Expired(now) {
			return Trainer{}, ErrTrainerExpired
		}
		city := titleCity(draft.Form.City)
		location := formatLocation(city, draft.Form.District)
		activatedAt := now
		return Trainer{
			ID:               trainerID,
			Form:             draft.Form,
			Location:         location,
			Content:          mergeContent(synthesizeContent(draft.Form, location), draft.Content),
			Status:           domain.TrainerStatusActive,
			Active:           true,
			Paid:             true,
			ActivatedAt:      &activatedAt,
			PaymentReference: confirmation.Reference,
			PromotedFrom:     draft.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}, nil
	})
	if err != nil {
		var exists *repositories.PromotionExistsError
		switch {
		case errors.As(err, &exists):
			return Trainer{}, &AlreadyPromotedError{DraftID: draftID, TrainerID: exists.Marker.TrainerID}
		case errors.Is(err, ErrTrainerExpired):
			return Trainer{}, err
		default:
			s.logger(ctx, "trainer.promote_failed", map[string]any{
				"draftID": draftID,
				"error":   err.Error(),
			})
			return Trainer{}, s.translateRepoError(err)
		}
	}

	if err := s.drafts.Delete(ctx, draftID); err != nil {
		s.logger(ctx, "trainer.draft_cleanup_failed", map[string]any{
			"draftID":   draftID,
			"trainerID": trainer.ID,
			"error":     err.Error(),
		})
	}
	s.announceActivation(ctx, trainer, confirmation)
	return trainer, nil
}

func (s *trainerService) announceActivation(ctx context.Context, trainer Trainer, confirmation PaymentConfirmation) {
	provider := confirmation.Provider
	if provider == "" {
		provider = paymentProviderDefault
	}
	if s.events != nil {
		err := s.events.Publish(ctx, domain.Event{
			Type:       domain.EventTrainerActivated,
			Subject:    trainer.ID,
			OccurredAt: s.now(),
			Attributes: map[string]string{
				"trainerId":        trainer.ID,
				"tempTrainerId":    trainer.PromotedFrom,
				"paymentReference": trainer.PaymentReference,
				"provider":         provider,
			},
		})
		if err != nil {
			s.logger(ctx, "trainer.event_publish_failed", map[string]any{
				"trainerID": trainer.ID,
				"error":     err.Error(),
			})
		}
	}
	if err := s.notifier.TrainerActivated(ctx, notify.TrainerActivated{
		To:         trainer.Form.Email,
		Name:       trainer.Form.Name,
		ProfileURL: s.profileURL(trainer.ID),
	}); err != nil {
		s.logger(ctx, "trainer.notify_failed", map[string]any{
			"trainerID": trainer.ID,
			"kind":      "trainer_activated",
			"error":     err.Error(),
		})
	}
}

func (s *trainerService) StartCheckout(ctx context.Context, draftID, token string) (CheckoutResult, error) {
	draft, err := s.authorize(ctx, draftID, token)
	if err != nil {
		return CheckoutResult{}, err
	}
	now := s.now()
	if draft.Expired(now) {
		return CheckoutResult{}, ErrTrainerExpired
	}
	if s.payments == nil {
		return CheckoutResult{}, ErrTrainerCheckoutUnavailable
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Reference:      draft.ID,
		PriceID:        s.checkout.PriceID,
		Amount:         s.checkout.Amount,
		Currency:       s.checkout.Currency,
		ProductName:    checkoutProductName,
		CustomerEmail:  draft.Form.Email,
		SuccessURL:     s.baseURL + "/trainers/temp/" + url.PathEscape(draft.ID) + "/activated?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      s.previewURL(draft.ID, draft.Token),
		Metadata:       map[string]string{checkoutMetadataDraft: draft.ID},
		IdempotencyKey: fmt.Sprintf("checkout_%s_%d", draft.ID, now.Truncate(checkoutDedupeWindow).Unix()),
	})
	if err != nil {
		s.logger(ctx, "trainer.checkout_failed", map[string]any{
			"draftID": draft.ID,
			"error":   err.Error(),
		})
		return CheckoutResult{}, fmt.Errorf("%w: %w", ErrTrainerCheckoutUnavailable, err)
	}
	return CheckoutResult{SessionID: session.ID, URL: session.URL, ExpiresAt: session.ExpiresAt}, nil
}

func (s *trainerService) GetTrainer(ctx context.Context, trainerID string) (Trainer, error) {
	trainerID = strings.TrimSpace(trainerID)
	if trainerID == "" {
		return Trainer{}, ErrTrainerNotFound
	}
	trainer, err := s.trainers.FindByID(ctx, trainerID)
	if err != nil {
		return Trainer{}, s.translateRepoError(err)
	}
	if !trainer.Listed() {
		return Trainer{}, ErrTrainerNotFound
	}
	return trainer, nil
}

func (s *trainerService) ListTrainers(ctx context.Context, filter TrainerListFilter) (domain.CursorPage[Trainer], error) {
	filter.City = strings.TrimSpace(filter.City)
	filter.Pagination.PageSize = pagination.Clamp(filter.Pagination.PageSize, pagination.Options{})
	filter.Pagination.PageToken = strings.TrimSpace(filter.Pagination.PageToken)
	page, err := s.trainers.ListActive(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Trainer]{}, err
		}
		return domain.CursorPage[Trainer]{}, s.translateRepoError(err)
	}
	return page, nil
}

// authorize loads the draft and checks the token. A draft that was promoted
// and cleaned up reports the trainer it became, but only to a caller holding
// the draft's token.
func (s *trainerService) authorize(ctx context.Context, draftID, token string) (TempTrainer, error) {
	draftID = strings.TrimSpace(draftID)
	token = strings.TrimSpace(token)
	if draftID == "" {
		return TempTrainer{}, ErrTrainerNotFound
	}
	draft, err := s.drafts.FindByID(ctx, draftID)
	if err != nil {
		if isNotFound(err) {
			if marker, perr := s.trainers.FindPromotion(ctx, draftID); perr == nil {
				if !tokenMatches(token, marker.TokenDigest, domain.DigestToken) {
					return TempTrainer{}, ErrTrainerTokenMismatch
				}
				return TempTrainer{}, &AlreadyPromotedError{DraftID: draftID, TrainerID: marker.TrainerID}
			}
		}
		return TempTrainer{}, s.translateRepoError(err)
	}
	if !tokenMatches(token, draft.Token, nil) {
		return TempTrainer{}, ErrTrainerTokenMismatch
	}
	return draft, nil
}

// tokenMatches compares token, optionally transformed by digest, against want
// in constant time. Empty values never match.
func tokenMatches(token, want string, digest func(string) string) bool {
	if token == "" || want == "" {
		return false
	}
	if digest != nil {
		token = digest(token)
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

func (s *trainerService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isNotFound(err):
		return ErrTrainerNotFound
	default:
		return fmt.Errorf("%w: %w", ErrTrainerUnavailable, err)
	}
}

func (s *trainerService) previewURL(draftID, token string) string {
	return s.baseURL + "/trainers/temp/" + url.PathEscape(draftID) + "?token=" + url.QueryEscape(token)
}

func (s *trainerService) profileURL(trainerID string) string {
	return s.baseURL + "/trainers/" + url.PathEscape(trainerID)
}
