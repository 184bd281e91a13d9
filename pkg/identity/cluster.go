package identity

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Cluster is the set of contacts belonging to one person, keyed by id.
type Cluster struct {
	byID map[int64]models.Contact
}

func NewCluster(contacts ...models.Contact) *Cluster {
	c := &Cluster{byID: make(map[int64]models.Contact, len(contacts))}
	c.Add(contacts...)
	return c
}

// Add inserts or replaces contacts by id and reports how many ids were new.
func (c *Cluster) Add(contacts ...models.Contact) int {
	added := 0
	for _, contact := range contacts {
		if _, ok := c.byID[contact.ID]; !ok {
			added++
		}
		c.byID[contact.ID] = contact
	}
	return added
}

func (c *Cluster) Get(id int64) (models.Contact, bool) {
	contact, ok := c.byID[id]
	return contact, ok
}

func (c *Cluster) Len() int {
	return len(c.byID)
}

func (c *Cluster) IsEmpty() bool {
	return len(c.byID) == 0
}

// Contacts returns the members ordered by createdAt, then id.
func (c *Cluster) Contacts() []models.Contact {
	out := make([]models.Contact, 0, len(c.byID))
	for _, contact := range c.byID {
		out = append(out, contact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return out
}

// Primaries returns the primary members, oldest first.
func (c *Cluster) Primaries() []models.Contact {
	var out []models.Contact
	for _, contact := range c.Contacts() {
		if contact.IsPrimary() {
			out = append(out, contact)
		}
	}
	return out
}

// Primary returns the oldest primary member.
func (c *Cluster) Primary() (models.Contact, bool) {
	primaries := c.Primaries()
	if len(primaries) == 0 {
		return models.Contact{}, false
	}
	return primaries[0], true
}

func (c *Cluster) HasEmail(email string) bool {
	for _, contact := range c.byID {
		if contact.Email != nil && *contact.Email == email {
			return true
		}
	}
	return false
}

func (c *Cluster) HasPhoneNumber(phone string) bool {
	for _, contact := range c.byID {
		if contact.PhoneNumber != nil && *contact.PhoneNumber == phone {
			return true
		}
	}
	return false
}

// HasPair reports whether a single member carries exactly this email and phone,
// where nil means the field is null on the record.
func (c *Cluster) HasPair(email, phone *string) bool {
	for _, contact := range c.byID {
		if equalPtr(contact.Email, email) && equalPtr(contact.PhoneNumber, phone) {
			return true
		}
	}
	return false
}

func (c *Cluster) IDs() []int64 {
	contacts := c.Contacts()
	ids := make([]int64, len(contacts))
	for i, contact := range contacts {
		ids[i] = contact.ID
	}
	return ids
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
