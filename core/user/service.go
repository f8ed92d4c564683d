package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
)

var (
	// errors
	ErrNotFound             = errors.New("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrPatientCodeExists    = errors.New("a patient with this code already exists")
	ErrUnknownPatientCode   = errors.New("This ID does not exist. Please check with the patient.")
	ErrNotLinked            = errors.New("caretaker is not linked to a patient")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")

	maxPatientCodeAttempts = 10
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		PatientCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckUniqueness(email string, excludedUsers ...User) error
		RegisterPatient(ctx context.Context, np NewPatient) (User, error)
		RegisterCaretaker(ctx context.Context, nc NewCaretaker) (User, error)
		FindPatientByCode(ctx context.Context, code string) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		ListCaretakers(ctx context.Context, patientID string) ([]User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
		tokens  tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

func (svc *service) CheckUniqueness(email string, excludedUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, excludedUsers); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

func (svc *service) newUser(name, email, role, pwd string) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return usr, nil
}

// uniquePatientCode keeps drawing codes until one is not taken.
func (svc *service) uniquePatientCode(ctx context.Context, exec core.DBExecutor) (string, error) {
	for attempt := 0; attempt < maxPatientCodeAttempts; attempt++ {
		code, err := generatePatientCodeFunc()
		if err != nil {
			return "", errors.Wrap(err, "generating patient code")
		}
		exists, err := svc.repo.PatientCodeExists(ctx, code, exec)
		if err != nil {
			return "", errors.Wrap(err, "checking patient code")
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrPatientCodeExists
}

func (svc *service) RegisterPatient(ctx context.Context, np NewPatient) (User, error) {
	usr, err := svc.newUser(np.Name, np.Email, RolePatient, np.Password)
	if err != nil {
		return User{}, err
	}

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if usr.PatientCode, err = svc.uniquePatientCode(ctx, tx); err != nil {
			return err
		}
		usr, err = svc.repo.CreateUser(ctx, usr, tx)
		return errors.Wrap(err, "creating patient")
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *service) RegisterCaretaker(ctx context.Context, nc NewCaretaker) (User, error) {
	usr, err := svc.newUser(nc.Name, nc.Email, RoleCaretaker, nc.Password)
	if err != nil {
		return User{}, err
	}

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		patient, err := svc.findPatientByCode(ctx, nc.PatientCode, tx)
		if err != nil {
			return err
		}
		usr.PatientID = patient.ID
		usr, err = svc.repo.CreateUser(ctx, usr, tx)
		return errors.Wrap(err, "creating caretaker")
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *service) findPatientByCode(ctx context.Context, code string, exec ...core.DBExecutor) (User, error) {
	code = NormalizePatientCode(code)
	patient, err := svc.repo.GetUser(ctx, GetFilter{PatientCode: code}, exec...)
	if err == nil && !patient.IsPatient() {
		err = ErrNotFound
	}
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(
				ErrUnknownPatientCode,
				core.FieldError{Field: "patient_code", Error: ErrUnknownPatientCode.Error()},
			)
		}
		return User{}, errors.Wrap(err, "finding patient by code")
	}
	return patient, nil
}

func (svc *service) FindPatientByCode(ctx context.Context, code string) (User, error) {
	return svc.findPatientByCode(ctx, code)
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) ListCaretakers(ctx context.Context, patientID string) ([]User, error) {
	active := true
	return svc.repo.QueryUsers(ctx, &QueryFilter{Role: RoleCaretaker, PatientID: patientID, IsActive: &active})
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	usr.UpdatedAt = time.Now().UTC()
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := func(fld string, err error) error {
		return core.NewValidationError(err, core.FieldError{Field: fld, Error: fmt.Sprintf("%s value", err.Error())})
	}

	uid, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr("uid", errInvalidUID)
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidErr("uid", errInvalidUID)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return invalidErr("token", err)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
