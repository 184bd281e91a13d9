package identity

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Observation is one (email?, phone?) submission. Empty strings are treated as absent.
type Observation struct {
	Email       *string
	PhoneNumber *string
}

func NewObservation(email, phone *string) Observation {
	obs := Observation{}
	if email != nil && *email != "" {
		e := *email
		obs.Email = &e
	}
	if phone != nil && *phone != "" {
		p := *phone
		obs.PhoneNumber = &p
	}
	return obs
}

func (o Observation) IsEmpty() bool {
	return o.Email == nil && o.PhoneNumber == nil
}

func (o Observation) HasBoth() bool {
	return o.Email != nil && o.PhoneNumber != nil
}

// LockKeys returns the identifiers of the observation in a stable order, so
// concurrent callers acquire overlapping locks in the same sequence.
func (o Observation) LockKeys() []string {
	keys := make([]string, 0, 2)
	if o.Email != nil {
		keys = append(keys, "email:"+*o.Email)
	}
	if o.PhoneNumber != nil {
		keys = append(keys, "phone:"+*o.PhoneNumber)
	}
	sort.Strings(keys)
	return keys
}

func (o Observation) newContact(precedence models.LinkPrecedence, linkedID *int64) *models.Contact {
	c := &models.Contact{LinkPrecedence: precedence, LinkedID: linkedID}
	if o.Email != nil {
		e := *o.Email
		c.Email = &e
	}
	if o.PhoneNumber != nil {
		p := *o.PhoneNumber
		c.PhoneNumber = &p
	}
	return c
}

func (o Observation) fields() map[string]any {
	fields := map[string]any{}
	if o.Email != nil {
		fields["email"] = *o.Email
	}
	if o.PhoneNumber != nil {
		fields["phone_number"] = *o.PhoneNumber
	}
	return fields
}
