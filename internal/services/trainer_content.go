package services

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	domain "github.com/fitmarket/api/internal/domain"
)

var plainText = bluemonday.StrictPolicy()

// titleCity capitalises each word of a city name. Casers keep state, so one
// is built per call.
func titleCity(city string) string {
	return cases.Title(language.German).String(strings.TrimSpace(city))
}

// sanitizeText strips all markup and surrounding whitespace. The result is
// plain text, so entities the policy emits are decoded again.
func sanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(value)))
}

func sanitizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = sanitizeText(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func formatLocation(city, district string) string {
	return domain.Lead{City: city, District: district}.DisplayLocation()
}

// synthesizeContent builds the public page of a trainer from the submitted
// form. The output depends only on the form.
func synthesizeContent(form TrainerForm, location string) TrainerContent {
	city := titleCity(form.City)
	if location == "" {
		location = formatLocation(city, form.District)
	}
	specialty := strings.TrimSpace(form.Specialty)

	headline := form.Name
	if specialty != "" {
		headline = fmt.Sprintf("%s | %s", form.Name, specialty)
	}
	sub := "Personal Training"
	if city != "" {
		sub = fmt.Sprintf("Personal Training in %s", city)
	}

	about := strings.TrimSpace(form.Bio)
	if about == "" {
		about = fmt.Sprintf("%s is a personal trainer", form.Name)
		if specialty != "" {
			about += " specialising in " + specialty
		}
		if location != "" {
			about += " based in " + location
		}
		about += "."
	}
	if len(form.Certifications) > 0 {
		about += " Certifications: " + strings.Join(form.Certifications, ", ") + "."
	}

	items := append([]string(nil), form.Services...)
	if len(items) == 0 && specialty != "" {
		items = []string{specialty}
	}

	return TrainerContent{
		Hero:     domain.HeroSection{Headline: headline, Subheadline: sub},
		About:    domain.AboutSection{Title: "About " + form.Name, Body: about},
		Services: domain.ServicesSection{Title: "Services", Items: items},
		Contact: domain.ContactSection{
			Title:    "Contact",
			Email:    form.Email,
			Phone:    form.Phone,
			Location: location,
		},
	}
}

// mergeContent applies the non-empty fields of patch to base.
func mergeContent(base, patch TrainerContent) TrainerContent {
	set := func(dst *string, v string) {
		if v = sanitizeText(v); v != "" {
			*dst = v
		}
	}
	set(&base.Hero.Headline, patch.Hero.Headline)
	set(&base.Hero.Subheadline, patch.Hero.Subheadline)
	set(&base.About.Title, patch.About.Title)
	set(&base.About.Body, patch.About.Body)
	set(&base.Services.Title, patch.Services.Title)
	if items := sanitizeList(patch.Services.Items); len(items) > 0 {
		base.Services.Items = items
	}
	set(&base.Contact.Title, patch.Contact.Title)
	set(&base.Contact.Email, patch.Contact.Email)
	set(&base.Contact.Phone, patch.Contact.Phone)
	set(&base.Contact.Location, patch.Contact.Location)
	return base
}
