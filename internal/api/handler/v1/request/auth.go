package request

import (
	"errors"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	passwordRegexPattern = `^(?=.*[a-z])(?=.*[A-Z])(?=.*\d)(?=.*[^A-Za-z0-9]).{8,20}$`
	emailDomain          = "@mail.utoronto.ca"
)

var (
	errInvalidPassword = errors.New("password must be 8-20 characters with an uppercase letter, a lowercase letter, a number and a special character")
	errInvalidEmail    = errors.New("email must be a " + emailDomain + " address")

	// regexp does not support lookahead.
	passwordExp = regexp2.MustCompile(passwordRegexPattern, regexp2.None)
	utoridExp   = regexp.MustCompile(`^[A-Za-z0-9]{7,20}$`)
)

var passwordRule = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	ok, err := passwordExp.MatchString(s)
	if err != nil || !ok {
		return errInvalidPassword
	}

	return nil
})

var utoridRule = validation.Match(utoridExp).Error("utorid must be 7-20 alphanumeric characters")

var campusEmailRule = validation.By(func(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	}
	if s == "" {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(s), emailDomain) {
		return errInvalidEmail
	}

	return nil
})

type LoginRequest struct {
	UTORid   string `json:"utorid"`
	Password string `json:"password"`
}

func (req *LoginRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.UTORid, validation.Required),
		validation.Field(&req.Password, validation.Required),
	)
}

type ResetRequest struct {
	UTORid string `json:"utorid"`
}

func (req *ResetRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.UTORid, validation.Required),
	)
}

type ResetPasswordRequest struct {
	UTORid   string `json:"utorid"`
	Password string `json:"password"`
}

func (req *ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.UTORid, validation.Required),
		validation.Field(&req.Password, validation.Required, passwordRule),
	)
}

type ChangePasswordRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (req *ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Old, validation.Required),
		validation.Field(&req.New, validation.Required, passwordRule),
	)
}

type CreateUserRequest struct {
	UTORid string `json:"utorid"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func (req *CreateUserRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.UTORid, validation.Required, utoridRule),
		validation.Field(&req.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&req.Email, validation.Required, is.Email, campusEmailRule),
	)
}

type UpdateUserRequest struct {
	Email      *string `json:"email"`
	Verified   *bool   `json:"verified"`
	Suspicious *bool   `json:"suspicious"`
	Role       *string `json:"role"`
}

func (req *UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Email, validation.NilOrNotEmpty, is.Email, campusEmailRule),
		validation.Field(&req.Role, validation.NilOrNotEmpty, validation.In("regular", "cashier", "manager", "superuser")),
	)
}

type UpdateMeRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Birthday  *string `json:"birthday"`
	AvatarURL *string `json:"avatarUrl"`
}

func (req *UpdateMeRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Name, validation.NilOrNotEmpty, validation.Length(1, 50)),
		validation.Field(&req.Email, validation.NilOrNotEmpty, is.Email, campusEmailRule),
		validation.Field(&req.Birthday, validation.NilOrNotEmpty, validation.Date("2006-01-02")),
		validation.Field(&req.AvatarURL, is.URL),
	)
}
