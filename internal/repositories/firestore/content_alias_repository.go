package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
	"github.com/fitmarket/api/internal/repositories"
)

const contentAliasesCollection = "content_aliases"

type contentAliasDocument struct {
	Kind      string    `firestore:"kind"`
	Alias     string    `firestore:"alias"`
	Target    string    `firestore:"target"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ContentAliasRepository records which slug a renamed content item moved to.
type ContentAliasRepository struct {
	aliases *pfirestore.Collection[contentAliasDocument]
	clock   func() time.Time
}

var _ repositories.ContentAliasRepository = (*ContentAliasRepository)(nil)

// NewContentAliasRepository constructs a Firestore-backed alias table.
func NewContentAliasRepository(provider *pfirestore.Provider) (*ContentAliasRepository, error) {
	if provider == nil {
		return nil, errors.New("content alias repository: firestore provider is required")
	}
	return &ContentAliasRepository{
		aliases: pfirestore.NewCollection[contentAliasDocument](provider, contentAliasesCollection, nil, nil),
		clock:   time.Now,
	}, nil
}

// Resolve returns the slug alias currently points to.
func (r *ContentAliasRepository) Resolve(ctx context.Context, kind domain.ContentKind, slug string) (string, error) {
	doc, err := r.aliases.Get(ctx, aliasDocID(kind, slug))
	if err != nil {
		return "", err
	}
	return doc.Data.Target, nil
}

// Save points alias at target, replacing any earlier mapping.
func (r *ContentAliasRepository) Save(ctx context.Context, kind domain.ContentKind, alias, target string) error {
	ref, err := r.aliases.Doc(ctx, aliasDocID(kind, alias))
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, contentAliasDocument{
		Kind:      string(kind),
		Alias:     alias,
		Target:    target,
		UpdatedAt: r.clock().UTC(),
	})
	return pfirestore.WrapError("content_aliases.save", err)
}

// aliasDocID keeps ids free of slashes, which Firestore treats as path separators.
func aliasDocID(kind domain.ContentKind, slug string) string {
	return string(kind) + ":" + strings.ReplaceAll(strings.Trim(strings.TrimSpace(slug), "/"), "/", "-")
}
