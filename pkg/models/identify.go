package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IdentityView is the consolidated picture of one person.
type IdentityView struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

type IdentifyRequest struct {
	Email       *string      `json:"email" validate:"omitempty,max=320"`
	PhoneNumber *PhoneNumber `json:"phoneNumber" validate:"omitempty,max=64"`
}

type IdentifyResponse struct {
	Contact IdentityView `json:"contact"`
}

// PhoneNumber accepts a JSON string or a JSON number, so both
// {"phoneNumber":"123456"} and {"phoneNumber":123456} bind.
type PhoneNumber string

func (p *PhoneNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PhoneNumber(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("phoneNumber must be a string or a number")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("phoneNumber must be an integer when sent as a number")
	}
	*p = PhoneNumber(n.String())
	return nil
}

func (p *PhoneNumber) StringPtr() *string {
	if p == nil {
		return nil
	}
	return StringPtr(string(*p))
}

// Observation is an IdentifyRequest with empty strings collapsed to absent.
func (r *IdentifyRequest) Observation() (email *string, phone *string) {
	if r.Email != nil {
		email = StringPtr(*r.Email)
	}
	return email, r.PhoneNumber.StringPtr()
}
