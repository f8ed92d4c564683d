package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/lucidiacare/lucidia/core"
)

// Roles
const (
	RolePatient   = "patient"
	RoleCaretaker = "caretaker"
)

var AllRoles = []string{RolePatient, RoleCaretaker}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PatientID    string    `json:"patient_id,omitempty"`   // caretakers only
	PatientCode  string    `json:"patient_code,omitempty"` // patients only
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsPatient() bool   { return u.Role == RolePatient }
func (u User) IsCaretaker() bool { return u.Role == RoleCaretaker }

// TargetID returns the ID of the patient whose data u operates on.
func (u User) TargetID() (string, error) {
	switch {
	case u.IsPatient():
		return u.ID, nil
	case u.IsCaretaker() && u.PatientID != "":
		return u.PatientID, nil
	default:
		return "", ErrNotLinked
	}
}

// NewPatient contains information needed to register a patient.
type NewPatient struct {
	Name            string `json:"name" validate:"notblank"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (np *NewPatient) Validate(validate *validator.Validate, svc Service) error {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)

	if err := validate.Struct(np); err != nil {
		return err
	}
	return svc.CheckUniqueness(np.Email)
}

// NewCaretaker contains information needed to register a caretaker linked to a patient.
type NewCaretaker struct {
	Name            string `json:"name" validate:"notblank"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	PatientCode     string `json:"patient_code" validate:"required,len=6,alphanum"`
}

func (nc *NewCaretaker) Validate(validate *validator.Validate, svc Service) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	nc.PatientCode = NormalizePatientCode(nc.PatientCode)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckUniqueness(nc.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// GetFilter selects a single user; the first non-empty field wins.
type GetFilter struct {
	ID          string
	Email       string
	PatientCode string
}

// QueryFilter applies AND operation on its non-empty fields.
type QueryFilter struct {
	Role      string
	PatientID string
	IsActive  *bool
}
