package firestore

import (
	"time"

	domain "github.com/fitmarket/api/internal/domain"
)

type trainerFormDocument struct {
	Name           string   `firestore:"name"`
	Email          string   `firestore:"email"`
	Phone          string   `firestore:"phone,omitempty"`
	City           string   `firestore:"city"`
	District       string   `firestore:"district"`
	Specialty      string   `firestore:"specialty"`
	Bio            string   `firestore:"bio,omitempty"`
	Certifications []string `firestore:"certifications,omitempty"`
	Services       []string `firestore:"services,omitempty"`
}

type trainerContentDocument struct {
	Hero struct {
		Headline    string `firestore:"headline"`
		Subheadline string `firestore:"subheadline"`
	} `firestore:"hero"`
	About struct {
		Title string `firestore:"title"`
		Body  string `firestore:"body"`
	} `firestore:"about"`
	Services struct {
		Title string   `firestore:"title"`
		Items []string `firestore:"items"`
	} `firestore:"services"`
	Contact struct {
		Title    string `firestore:"title"`
		Email    string `firestore:"email"`
		Phone    string `firestore:"phone"`
		Location string `firestore:"location"`
	} `firestore:"contact"`
}

type trainerDraftDocument struct {
	Form      trainerFormDocument    `firestore:"form"`
	Content   trainerContentDocument `firestore:"content"`
	Token     string                 `firestore:"token"`
	Status    string                 `firestore:"status"`
	Paid      bool                   `firestore:"paid"`
	Active    bool                   `firestore:"active"`
	CreatedAt time.Time              `firestore:"createdAt"`
	UpdatedAt time.Time              `firestore:"updatedAt"`
	ExpiresAt time.Time              `firestore:"expiresAt"`
}

type trainerDocument struct {
	Form             trainerFormDocument    `firestore:"form"`
	City             string                 `firestore:"city"`
	Location         string                 `firestore:"location,omitempty"`
	Content          trainerContentDocument `firestore:"content"`
	Status           string                 `firestore:"status"`
	Active           bool                   `firestore:"active"`
	Paid             bool                   `firestore:"paid"`
	ActivatedAt      *time.Time             `firestore:"activatedAt"`
	PaymentReference string                 `firestore:"paymentReference,omitempty"`
	PromotedFrom     string                 `firestore:"promotedFrom,omitempty"`
	LeadID           string                 `firestore:"leadId,omitempty"`
	CreatedAt        time.Time              `firestore:"createdAt"`
	UpdatedAt        time.Time              `firestore:"updatedAt"`
}

type promotionDocument struct {
	TempID           string    `firestore:"tempId"`
	TrainerID        string    `firestore:"trainerId"`
	PaymentReference string    `firestore:"paymentReference"`
	PromotedAt       time.Time `firestore:"promotedAt"`
	TokenDigest      string    `firestore:"tokenDigest"`
}

type leadDocument struct {
	Name               string     `firestore:"name"`
	Email              string     `firestore:"email"`
	Phone              string     `firestore:"phone,omitempty"`
	City               string     `firestore:"city,omitempty"`
	District           string     `firestore:"district,omitempty"`
	Location           string     `firestore:"location,omitempty"`
	Goal               string     `firestore:"goal,omitempty"`
	Source             string     `firestore:"source,omitempty"`
	Status             string     `firestore:"status"`
	ConvertedToTrainer bool       `firestore:"convertedToTrainer"`
	TrainerID          string     `firestore:"trainerId,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
	UpdatedAt          time.Time  `firestore:"updatedAt"`
	ConvertedAt        *time.Time `firestore:"convertedAt,omitempty"`
}

func encodeForm(form domain.TrainerForm) trainerFormDocument {
	return trainerFormDocument{
		Name:           form.Name,
		Email:          form.Email,
		Phone:          form.Phone,
		City:           form.City,
		District:       form.District,
		Specialty:      form.Specialty,
		Bio:            form.Bio,
		Certifications: append([]string(nil), form.Certifications...),
		Services:       append([]string(nil), form.Services...),
	}
}

func (d trainerFormDocument) toDomain() domain.TrainerForm {
	return domain.TrainerForm{
		Name:           d.Name,
		Email:          d.Email,
		Phone:          d.Phone,
		City:           d.City,
		District:       d.District,
		Specialty:      d.Specialty,
		Bio:            d.Bio,
		Certifications: append([]string(nil), d.Certifications...),
		Services:       append([]string(nil), d.Services...),
	}
}

func encodeContent(content domain.TrainerContent) trainerContentDocument {
	var doc trainerContentDocument
	doc.Hero.Headline = content.Hero.Headline
	doc.Hero.Subheadline = content.Hero.Subheadline
	doc.About.Title = content.About.Title
	doc.About.Body = content.About.Body
	doc.Services.Title = content.Services.Title
	doc.Services.Items = append([]string{}, content.Services.Items...)
	doc.Contact.Title = content.Contact.Title
	doc.Contact.Email = content.Contact.Email
	doc.Contact.Phone = content.Contact.Phone
	doc.Contact.Location = content.Contact.Location
	return doc
}

func (d trainerContentDocument) toDomain() domain.TrainerContent {
	return domain.TrainerContent{
		Hero:     domain.HeroSection{Headline: d.Hero.Headline, Subheadline: d.Hero.Subheadline},
		About:    domain.AboutSection{Title: d.About.Title, Body: d.About.Body},
		Services: domain.ServicesSection{Title: d.Services.Title, Items: append([]string(nil), d.Services.Items...)},
		Contact: domain.ContactSection{
			Title:    d.Contact.Title,
			Email:    d.Contact.Email,
			Phone:    d.Contact.Phone,
			Location: d.Contact.Location,
		},
	}
}

func encodeDraft(draft domain.TempTrainer) trainerDraftDocument {
	return trainerDraftDocument{
		Form:      encodeForm(draft.Form),
		Content:   encodeContent(draft.Content),
		Token:     draft.Token,
		Status:    string(draft.Status),
		Paid:      draft.Paid,
		Active:    draft.Active,
		CreatedAt: draft.CreatedAt.UTC(),
		UpdatedAt: draft.UpdatedAt.UTC(),
		ExpiresAt: draft.ExpiresAt.UTC(),
	}
}

func (d trainerDraftDocument) toDomain(id string) domain.TempTrainer {
	return domain.TempTrainer{
		ID:        id,
		Form:      d.Form.toDomain(),
		Content:   d.Content.toDomain(),
		Token:     d.Token,
		Status:    domain.TrainerStatus(d.Status),
		Paid:      d.Paid,
		Active:    d.Active,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		ExpiresAt: d.ExpiresAt.UTC(),
	}
}

// encodeTrainer also stores the lower-cased city at the top level so the
// directory can filter on it.
func encodeTrainer(trainer domain.Trainer) trainerDocument {
	return trainerDocument{
		Form:             encodeForm(trainer.Form),
		City:             cityKey(trainer.Form.City),
		Location:         trainer.Location,
		Content:          encodeContent(trainer.Content),
		Status:           string(trainer.Status),
		Active:           trainer.Active,
		Paid:             trainer.Paid,
		ActivatedAt:      utcPtr(trainer.ActivatedAt),
		PaymentReference: trainer.PaymentReference,
		PromotedFrom:     trainer.PromotedFrom,
		LeadID:           trainer.LeadID,
		CreatedAt:        trainer.CreatedAt.UTC(),
		UpdatedAt:        trainer.UpdatedAt.UTC(),
	}
}

func (d trainerDocument) toDomain(id string) domain.Trainer {
	return domain.Trainer{
		ID:               id,
		Form:             d.Form.toDomain(),
		Location:         d.Location,
		Content:          d.Content.toDomain(),
		Status:           domain.TrainerStatus(d.Status),
		Active:           d.Active,
		Paid:             d.Paid,
		ActivatedAt:      utcPtr(d.ActivatedAt),
		PaymentReference: d.PaymentReference,
		PromotedFrom:     d.PromotedFrom,
		LeadID:           d.LeadID,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func encodeLead(lead domain.Lead) leadDocument {
	return leadDocument{
		Name:               lead.Name,
		Email:              lead.Email,
		Phone:              lead.Phone,
		City:               lead.City,
		District:           lead.District,
		Location:           lead.Location,
		Goal:               lead.Goal,
		Source:             lead.Source,
		Status:             string(lead.Status),
		ConvertedToTrainer: lead.ConvertedToTrainer,
		TrainerID:          lead.TrainerID,
		CreatedAt:          lead.CreatedAt.UTC(),
		UpdatedAt:          lead.UpdatedAt.UTC(),
		ConvertedAt:        utcPtr(lead.ConvertedAt),
	}
}

func (d leadDocument) toDomain(id string) domain.Lead {
	return domain.Lead{
		ID:                 id,
		Name:               d.Name,
		Email:              d.Email,
		Phone:              d.Phone,
		City:               d.City,
		District:           d.District,
		Location:           d.Location,
		Goal:               d.Goal,
		Source:             d.Source,
		Status:             domain.LeadStatus(d.Status),
		ConvertedToTrainer: d.ConvertedToTrainer,
		TrainerID:          d.TrainerID,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		ConvertedAt:        utcPtr(d.ConvertedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
