// Package memory keeps the patient's memory book: dated pictures with a story and tags.
package memory

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
)

// DateLayout is the calendar date format of Memory.Date.
const DateLayout = "2006-01-02"

var ErrNotFound = errors.New("memory not found")

// DefaultOrdering lists the newest memories first.
var DefaultOrdering = []core.DBOrdering{{Field: "date"}, {Field: "created_at"}}

type Memory struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Date        string    `json:"date"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type NewMemory struct {
	Title       string   `json:"title" validate:"notblank"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url" validate:"omitempty,imageurl"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Tags        []string `json:"tags"`
}

func (nm *NewMemory) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	nm.ImageURL = core.CleanString(nm.ImageURL)
	nm.Date = core.CleanString(nm.Date)
	nm.Tags = core.CleanStrings(nm.Tags)
	return validate.Struct(nm)
}

// UpdateMemory holds the fields to change; nil fields are left as is.
type UpdateMemory struct {
	Title       *string   `json:"title" validate:"omitempty,notblank"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"image_url" validate:"omitempty,imageurl"`
	Date        *string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Tags        *[]string `json:"tags"`
}

func (um *UpdateMemory) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{um.Title, um.Description, um.ImageURL, um.Date} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	if um.Tags != nil {
		tags := core.CleanStrings(*um.Tags)
		um.Tags = &tags
	}
	return validate.Struct(um)
}

func (um UpdateMemory) apply(m *Memory) {
	if um.Title != nil {
		m.Title = *um.Title
	}
	if um.Description != nil {
		m.Description = *um.Description
	}
	if um.ImageURL != nil {
		m.ImageURL = *um.ImageURL
	}
	if um.Date != nil {
		m.Date = *um.Date
	}
	if um.Tags != nil {
		m.Tags = *um.Tags
	}
}

type (
	Repository interface {
		// QueryMemories returns the owner's memories sorted by ordering, DefaultOrdering when empty.
		QueryMemories(ctx context.Context, ownerID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Memory, error)
		GetMemory(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Memory, error)
		CreateMemory(ctx context.Context, m Memory, exec ...core.DBExecutor) (Memory, error)
		UpdateMemory(ctx context.Context, m Memory, exec ...core.DBExecutor) (Memory, error)
		DeleteMemory(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		List(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]Memory, error)
		Get(ctx context.Context, ownerID, id string) (Memory, error)
		Create(ctx context.Context, ownerID string, nm NewMemory) (Memory, error)
		Update(ctx context.Context, ownerID, id string, um UpdateMemory) (Memory, error)
		Delete(ctx context.Context, ownerID, id string) error
	}

	service struct {
		repo      Repository
		publisher event.Publisher
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, publisher event.Publisher) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(publisher, "publisher"),
	).CheckAndPanic()
	return &service{repo: repo, publisher: publisher}
}

func (svc *service) List(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]Memory, error) {
	return svc.repo.QueryMemories(ctx, ownerID, ordering)
}

func (svc *service) Get(ctx context.Context, ownerID, id string) (Memory, error) {
	return svc.repo.GetMemory(ctx, ownerID, id)
}

func (svc *service) Create(ctx context.Context, ownerID string, nm NewMemory) (Memory, error) {
	tags := nm.Tags
	if tags == nil {
		tags = []string{}
	}
	m, err := svc.repo.CreateMemory(ctx, Memory{
		OwnerID:     ownerID,
		Title:       nm.Title,
		Description: nm.Description,
		ImageURL:    nm.ImageURL,
		Date:        nm.Date,
		Tags:        tags,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Memory{}, errors.Wrap(err, "creating memory")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionMemories, event.OpCreated, ownerID, m.ID, m))
	return m, nil
}

func (svc *service) Update(ctx context.Context, ownerID, id string, um UpdateMemory) (Memory, error) {
	m, err := svc.repo.GetMemory(ctx, ownerID, id)
	if err != nil {
		return Memory{}, err
	}
	um.apply(&m)
	if m, err = svc.repo.UpdateMemory(ctx, m); err != nil {
		return Memory{}, errors.Wrap(err, "updating memory")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionMemories, event.OpUpdated, ownerID, m.ID, m))
	return m, nil
}

func (svc *service) Delete(ctx context.Context, ownerID, id string) error {
	if err := svc.repo.DeleteMemory(ctx, ownerID, id); err != nil {
		return err
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionMemories, event.OpDeleted, ownerID, id, nil))
	return nil
}
