package payments

import (
	"context"
	"net/url"

	"github.com/infest-events/registration/internal/models"
)

// LinkCreator creates hosted payment links.
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, reg *models.Registration) (*PaymentLink, error)
}

// Checkout resolves where an online registrant is sent to pay: a freshly
// created payment link when links are enabled, otherwise the static payment
// page with the registration id appended.
type Checkout struct {
	links   LinkCreator
	pageURL string
}

// NewCheckout creates a checkout resolver. links may be nil.
func NewCheckout(links LinkCreator, pageURL string) *Checkout {
	return &Checkout{links: links, pageURL: pageURL}
}

func (c *Checkout) CheckoutURL(ctx context.Context, reg *models.Registration) (string, error) {
	if c.links != nil {
		link, err := c.links.CreatePaymentLink(ctx, reg)
		if err == nil {
			return link.ShortURL, nil
		}
		if c.pageURL == "" {
			return "", err
		}
	}
	if c.pageURL == "" {
		return "", nil
	}
	return WithRegistrationID(c.pageURL, reg.ID)
}

// WithRegistrationID sets the registration_id query parameter on raw.
func WithRegistrationID(raw, registrationID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("registration_id", registrationID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
