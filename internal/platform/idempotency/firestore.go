package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
)

const collectionName = "idempotency_keys"

type entryDoc struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Done        bool                `firestore:"done"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (d entryDoc) entry() Entry {
	return Entry(d)
}

// FirestoreStore keeps claims in the idempotency_keys collection, one
// document per key hash.
type FirestoreStore struct {
	provider *pfirestore.Provider
	entries  *pfirestore.Collection[entryDoc]
}

// NewFirestoreStore binds the store to provider.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		entries:  pfirestore.NewCollection[entryDoc](provider, collectionName, nil, nil),
	}
}

// Claim implements Store inside a transaction so concurrent first requests
// cannot both win.
func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	ref, err := s.entries.Doc(ctx, documentID(key))
	if err != nil {
		return 0, Entry{}, err
	}
	var (
		outcome Outcome
		result  Entry
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc entryDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			current := doc.entry()
			if !current.expired(now) {
				if current.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				outcome, result = OutcomeInFlight, current
				if current.Done {
					outcome = OutcomeReplay
				}
				return nil
			}
		}
		fresh := pendingEntry(key, fingerprint, now.UTC(), ttl)
		outcome, result = OutcomeFresh, fresh
		return tx.Set(ref, entryDoc(fresh))
	})
	if err != nil {
		return 0, Entry{}, err
	}
	return outcome, result, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, entry Entry, now time.Time, ttl time.Duration) error {
	ref, err := s.entries.Doc(ctx, documentID(entry.Key))
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc entryDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != entry.Fingerprint {
				return ErrFingerprintMismatch
			}
			entry.CreatedAt = doc.CreatedAt
		case status.Code(err) != codes.NotFound:
			return err
		}
		entry.Done = true
		entry.ExpiresAt = now.UTC().Add(ttl)
		return tx.Set(ref, entryDoc(entry))
	})
}

// Abandon implements Store.
func (s *FirestoreStore) Abandon(ctx context.Context, key string) error {
	err := s.entries.Delete(ctx, documentID(key))
	if pfirestore.IsNotFound(err) {
		return nil
	}
	return err
}

// Sweep deletes up to limit expired entries in one batch.
func (s *FirestoreStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.entries.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	batch := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := batch.Delete(client.Collection(collectionName).Doc(doc.ID)); err != nil {
			batch.End()
			return 0, pfirestore.WrapError("idempotency.sweep", err)
		}
	}
	batch.End()
	return len(docs), nil
}
