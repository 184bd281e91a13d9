package identity

import (
	"github.com/Gobusters/ectolinq"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Format renders a cluster as an IdentityView. The primary's email and phone
// number lead their lists; the rest follow in creation order without repeats.
func Format(cluster *Cluster) (*models.IdentityView, error) {
	const op = "identity.Format"
	if cluster == nil {
		return nil, newError(KindNoPrimaryFound, op, nil)
	}
	primary, ok := cluster.Primary()
	if !ok {
		return nil, newError(KindNoPrimaryFound, op, nil)
	}

	ordered := []models.Contact{primary}
	var secondaries []models.Contact
	for _, contact := range cluster.Contacts() {
		if contact.ID == primary.ID {
			continue
		}
		ordered = append(ordered, contact)
		if contact.IsSecondary() {
			secondaries = append(secondaries, contact)
		}
	}

	secondaryIDs := ectolinq.Map(secondaries, func(c models.Contact) int64 { return c.ID })
	if secondaryIDs == nil {
		secondaryIDs = []int64{}
	}

	return &models.IdentityView{
		PrimaryContactID:    primary.ID,
		Emails:              distinct(ordered, func(c models.Contact) *string { return c.Email }),
		PhoneNumbers:        distinct(ordered, func(c models.Contact) *string { return c.PhoneNumber }),
		SecondaryContactIDs: secondaryIDs,
	}, nil
}

func distinct(contacts []models.Contact, field func(models.Contact) *string) []string {
	out := make([]string, 0, len(contacts))
	seen := make(map[string]bool, len(contacts))
	for _, contact := range contacts {
		value := field(contact)
		if value == nil || seen[*value] {
			continue
		}
		seen[*value] = true
		out = append(out, *value)
	}
	return out
}
