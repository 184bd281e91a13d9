package models

import (
	"fmt"
	"time"
)

type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// ParseLinkPrecedence rejects anything other than primary or secondary.
func ParseLinkPrecedence(value string) (LinkPrecedence, error) {
	switch p := LinkPrecedence(value); p {
	case LinkPrecedencePrimary, LinkPrecedenceSecondary:
		return p, nil
	default:
		return "", fmt.Errorf("unknown link precedence %q", value)
	}
}

// Contact is one observed (email, phone) submission. A primary has no LinkedID;
// a secondary points at the primary of its cluster.
type Contact struct {
	ID             int64          `json:"id"`
	PhoneNumber    *string        `json:"phoneNumber"`
	Email          *string        `json:"email"`
	LinkedID       *int64         `json:"linkedId"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt"`
}

func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

func (c *Contact) IsSecondary() bool {
	return c.LinkPrecedence == LinkPrecedenceSecondary
}

// Before orders contacts by creation time, then id.
func (c *Contact) Before(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// Clone returns a deep copy so callers cannot alias store-owned pointers.
func (c Contact) Clone() Contact {
	out := c
	out.PhoneNumber = cloneString(c.PhoneNumber)
	out.Email = cloneString(c.Email)
	if c.LinkedID != nil {
		id := *c.LinkedID
		out.LinkedID = &id
	}
	if c.DeletedAt != nil {
		at := *c.DeletedAt
		out.DeletedAt = &at
	}
	return out
}

// ContactUpdate lists the fields a store update may change. Nil fields are left alone.
type ContactUpdate struct {
	LinkedID       *int64
	LinkPrecedence *LinkPrecedence
}

// Demote turns a primary into a secondary of survivorID.
func Demote(survivorID int64) ContactUpdate {
	p := LinkPrecedenceSecondary
	return ContactUpdate{LinkedID: &survivorID, LinkPrecedence: &p}
}

// Relink points a secondary at survivorID.
func Relink(survivorID int64) ContactUpdate {
	return ContactUpdate{LinkedID: &survivorID}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Int64Ptr(v int64) *int64 {
	return &v
}
