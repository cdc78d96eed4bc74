package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps paginated results alongside the next cursor token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// TrainerStatus is the lifecycle state stored on trainer documents.
type TrainerStatus string

const (
	// TrainerStatusTemp marks an unpaid, token-gated preview.
	TrainerStatusTemp TrainerStatus = "temp"
	// TrainerStatusActive marks a paid, publicly listed trainer.
	TrainerStatusActive TrainerStatus = "active"
	// TrainerStatusWebsiteCreated marks a trainer created from a lead by an admin, not yet paid.
	TrainerStatusWebsiteCreated TrainerStatus = "website_created"
)

// TrainerForm holds the fields a trainer submits when creating a preview.
// They are fixed once the preview exists.
type TrainerForm struct {
	Name           string
	Email          string
	Phone          string
	City           string
	District       string
	Specialty      string
	Bio            string
	Certifications []string
	Services       []string
}

// TrainerContent is the editable page content rendered for a trainer.
type TrainerContent struct {
	Hero     HeroSection
	About    AboutSection
	Services ServicesSection
	Contact  ContactSection
}

// HeroSection is the page header.
type HeroSection struct {
	Headline    string
	Subheadline string
}

// AboutSection introduces the trainer.
type AboutSection struct {
	Title string
	Body  string
}

// ServicesSection lists what the trainer offers.
type ServicesSection struct {
	Title string
	Items []string
}

// ContactSection carries public contact details.
type ContactSection struct {
	Title    string
	Email    string
	Phone    string
	Location string
}

// TempTrainer is an unpaid trainer preview reachable only with its token.
type TempTrainer struct {
	ID        string
	Form      TrainerForm
	Content   TrainerContent
	Token     string
	Status    TrainerStatus
	Paid      bool
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the preview is past its expiry at now.
func (t TempTrainer) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Trainer is a permanent trainer record. Active and Paid, once set, are never cleared.
type Trainer struct {
	ID               string
	Form             TrainerForm
	Location         string
	Content          TrainerContent
	Status           TrainerStatus
	Active           bool
	Paid             bool
	ActivatedAt      *time.Time
	PaymentReference string
	PromotedFrom     string
	LeadID           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Listed reports whether the trainer appears in the public directory.
func (t Trainer) Listed() bool {
	return t.Active && t.Paid
}

// PaymentConfirmation is the verified payment signal that triggers promotion.
type PaymentConfirmation struct {
	Reference string
	Provider  string
	Amount    int64
	Currency  string
}

// PromotionMarker records that a preview has been promoted. One marker per preview id.
type PromotionMarker struct {
	TempID           string
	TrainerID        string
	PaymentReference string
	PromotedAt       time.Time
	// TokenDigest is DigestToken of the preview's session token. The preview
	// is deleted after promotion, so the marker is what checks late callers.
	TokenDigest string
}

// DigestToken hashes a session token for storage alongside a promotion marker.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// LeadStatus is the lifecycle state of a lead.
type LeadStatus string

const (
	// LeadStatusNew is a captured, unconverted lead.
	LeadStatusNew LeadStatus = "new"
	// LeadStatusConverted is a lead that became a trainer.
	LeadStatusConverted LeadStatus = "converted"
)

// Lead is a prospective trainer captured from a marketing form.
type Lead struct {
	ID                 string
	Name               string
	Email              string
	Phone              string
	City               string
	District           string
	Location           string
	Goal               string
	Source             string
	Status             LeadStatus
	ConvertedToTrainer bool
	TrainerID          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConvertedAt        *time.Time
}

// DisplayLocation returns the explicit location, or "city, district" built
// from whichever parts are present.
func (l Lead) DisplayLocation() string {
	if loc := strings.TrimSpace(l.Location); loc != "" {
		return loc
	}
	parts := make([]string, 0, 2)
	for _, p := range []string{l.City, l.District} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ContentKind selects a content collection in the blob store.
type ContentKind string

const (
	// ContentKindBlog stores blog posts under blog/.
	ContentKindBlog ContentKind = "blog"
	// ContentKindInterviews stores trainer interviews under interviews/.
	ContentKindInterviews ContentKind = "interviews"
)

// ParseContentKind validates a kind taken from a URL.
func ParseContentKind(value string) (ContentKind, bool) {
	switch kind := ContentKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case ContentKindBlog, ContentKindInterviews:
		return kind, true
	}
	return "", false
}

// Prefix is the blob path prefix for the kind.
func (k ContentKind) Prefix() string {
	return string(k) + "/"
}

// FrontMatter is the YAML header of a markdown content item.
type FrontMatter struct {
	Title    string   `yaml:"title" json:"title"`
	Date     string   `yaml:"date" json:"date"`
	Excerpt  string   `yaml:"excerpt" json:"excerpt,omitempty"`
	Image    string   `yaml:"image" json:"image,omitempty"`
	Category string   `yaml:"category" json:"category,omitempty"`
	Author   string   `yaml:"author" json:"author,omitempty"`
	Tags     []string `yaml:"tags" json:"tags,omitempty"`
}

// ContentSummary is a listing entry for a content item.
type ContentSummary struct {
	Kind        ContentKind
	Slug        string
	Path        string
	FrontMatter FrontMatter
	UpdatedAt   time.Time
}

// ContentItem is a fully loaded content item. The slug is derived from Path.
type ContentItem struct {
	ContentSummary
	Markdown string
	HTML     string
}

// Event types published to downstream consumers.
const (
	EventTrainerActivated = "trainer.activated"
	EventContentChanged   = "content.changed"
)

// Event is a notification for systems outside this service.
type Event struct {
	Type       string
	Subject    string
	OccurredAt time.Time
	Attributes map[string]string
}
