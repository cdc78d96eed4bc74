package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/fitmarket/api/internal/domain"
	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
	"github.com/fitmarket/api/internal/platform/pagination"
	"github.com/fitmarket/api/internal/repositories"
)

const (
	trainersCollection   = "trainers"
	promotionsCollection = "trainer_promotions"
)

// TrainerRepository persists permanent trainers and the promotion markers
// that guard draft promotion.
type TrainerRepository struct {
	provider   *pfirestore.Provider
	trainers   *pfirestore.Collection[trainerDocument]
	drafts     *pfirestore.Collection[trainerDraftDocument]
	promotions *pfirestore.Collection[promotionDocument]
}

var _ repositories.TrainerRepository = (*TrainerRepository)(nil)

// NewTrainerRepository constructs a Firestore-backed trainer repository.
func NewTrainerRepository(provider *pfirestore.Provider) (*TrainerRepository, error) {
	if provider == nil {
		return nil, errors.New("trainer repository: firestore provider is required")
	}
	return &TrainerRepository{
		provider:   provider,
		trainers:   pfirestore.NewCollection[trainerDocument](provider, trainersCollection, nil, nil),
		drafts:     pfirestore.NewCollection[trainerDraftDocument](provider, trainerDraftsCollection, nil, nil),
		promotions: pfirestore.NewCollection[promotionDocument](provider, promotionsCollection, nil, nil),
	}, nil
}

// Promote runs the promotion inside one transaction. The marker document is
// keyed by draft id and created with Create, so two concurrent promotions of
// the same draft cannot both commit; the loser retries, sees the marker and
// returns *PromotionExistsError.
func (r *TrainerRepository) Promote(ctx context.Context, draftID, paymentReference string, promotedAt time.Time, build repositories.PromoteBuilder) (domain.Trainer, error) {
	if build == nil {
		return domain.Trainer{}, errors.New("trainer repository: promote builder is required")
	}
	draftID = strings.TrimSpace(draftID)
	markerRef, err := r.promotions.Doc(ctx, draftID)
	if err != nil {
		return domain.Trainer{}, err
	}
	draftRef, err := r.drafts.Doc(ctx, draftID)
	if err != nil {
		return domain.Trainer{}, err
	}

	var promoted domain.Trainer
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		markerSnap, err := tx.Get(markerRef)
		switch {
		case err == nil:
			var marker promotionDocument
			if err := markerSnap.DataTo(&marker); err != nil {
				return fmt.Errorf("decode promotion %s: %w", draftID, err)
			}
			return &repositories.PromotionExistsError{Marker: marker.toDomain()}
		case status.Code(err) != codes.NotFound:
			return pfirestore.WrapError("trainer_promotions.get", err)
		}

		draftSnap, err := tx.Get(draftRef)
		if err != nil {
			return pfirestore.WrapError("trainer_drafts.get", err)
		}
		var draft trainerDraftDocument
		if err := draftSnap.DataTo(&draft); err != nil {
			return fmt.Errorf("decode draft %s: %w", draftID, err)
		}

		trainer, err := build(draft.toDomain(draftID))
		if err != nil {
			return err
		}
		trainerRef, err := r.trainers.Doc(ctx, trainer.ID)
		if err != nil {
			return err
		}

		if err := tx.Create(markerRef, promotionDocument{
			TempID:           draftID,
			TrainerID:        trainer.ID,
			PaymentReference: paymentReference,
			PromotedAt:       promotedAt.UTC(),
			TokenDigest:      domain.DigestToken(draft.Token),
		}); err != nil {
			return err
		}
		if err := tx.Create(trainerRef, encodeTrainer(trainer)); err != nil {
			return err
		}
		promoted = trainer
		return nil
	})
	if err != nil {
		return domain.Trainer{}, err
	}
	return promoted, nil
}

// FindPromotion returns the marker written when draftID was promoted.
func (r *TrainerRepository) FindPromotion(ctx context.Context, draftID string) (repositories.PromotionMarker, error) {
	doc, err := r.promotions.Get(ctx, strings.TrimSpace(draftID))
	if err != nil {
		return repositories.PromotionMarker{}, err
	}
	return doc.Data.toDomain(), nil
}

// FindByID loads a trainer regardless of listing state.
func (r *TrainerRepository) FindByID(ctx context.Context, trainerID string) (domain.Trainer, error) {
	trainerID = strings.TrimSpace(trainerID)
	if trainerID == "" {
		return domain.Trainer{}, pfirestore.NotFoundError("trainers.get", "trainer id is required")
	}
	doc, err := r.trainers.Get(ctx, trainerID)
	if err != nil {
		return domain.Trainer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListActive pages through paid, active trainers newest activation first.
func (r *TrainerRepository) ListActive(ctx context.Context, filter repositories.TrainerListFilter) (domain.CursorPage[domain.Trainer], error) {
	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Trainer]{}, err
	}
	city := cityKey(filter.City)

	docs, err := r.trainers.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("active", "==", true).Where("paid", "==", true)
		if city != "" {
			q = q.Where("city", "==", city)
		}
		q = q.OrderBy("activatedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.After, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Trainer]{}, err
	}

	page := domain.CursorPage[domain.Trainer]{}
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		after := last.UpdateTime
		if last.Data.ActivatedAt != nil {
			after = *last.Data.ActivatedAt
		}
		page.NextPageToken = pagination.EncodeToken(pagination.Cursor{After: after.UTC(), ID: last.ID})
	}
	page.Items = make([]domain.Trainer, 0, len(docs))
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

func (d promotionDocument) toDomain() domain.PromotionMarker {
	return domain.PromotionMarker{
		TempID:           d.TempID,
		TrainerID:        d.TrainerID,
		PaymentReference: d.PaymentReference,
		PromotedAt:       d.PromotedAt.UTC(),
		TokenDigest:      d.TokenDigest,
	}
}

func cityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
