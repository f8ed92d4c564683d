// Package face manages the profiles of the people a patient should recognise.
package face

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
)

var ErrNotFound = errors.New("face not found")

type Face struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Relation  string    `json:"relation"`
	ImageURL  string    `json:"image_url"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewFace struct {
	Name     string `json:"name" validate:"notblank"`
	Relation string `json:"relation" validate:"notblank"`
	ImageURL string `json:"image_url" validate:"omitempty,imageurl"`
	Notes    string `json:"notes"`
}

func (nf *NewFace) Validate(validate *validator.Validate) error {
	nf.Name = core.CleanString(nf.Name)
	nf.Relation = core.CleanString(nf.Relation)
	nf.ImageURL = core.CleanString(nf.ImageURL)
	nf.Notes = core.CleanString(nf.Notes)
	return validate.Struct(nf)
}

// UpdateFace holds the fields to change; nil fields are left as is.
type UpdateFace struct {
	Name     *string `json:"name" validate:"omitempty,notblank"`
	Relation *string `json:"relation" validate:"omitempty,notblank"`
	ImageURL *string `json:"image_url" validate:"omitempty,imageurl"`
	Notes    *string `json:"notes"`
}

func (uf *UpdateFace) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{uf.Name, uf.Relation, uf.ImageURL, uf.Notes} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(uf)
}

func (uf UpdateFace) apply(f *Face) {
	if uf.Name != nil {
		f.Name = *uf.Name
	}
	if uf.Relation != nil {
		f.Relation = *uf.Relation
	}
	if uf.ImageURL != nil {
		f.ImageURL = *uf.ImageURL
	}
	if uf.Notes != nil {
		f.Notes = *uf.Notes
	}
}

type (
	Repository interface {
		QueryFaces(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]Face, error)
		GetFace(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Face, error)
		CreateFace(ctx context.Context, f Face, exec ...core.DBExecutor) (Face, error)
		UpdateFace(ctx context.Context, f Face, exec ...core.DBExecutor) (Face, error)
		DeleteFace(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		List(ctx context.Context, ownerID string) ([]Face, error)
		Get(ctx context.Context, ownerID, id string) (Face, error)
		Create(ctx context.Context, ownerID string, nf NewFace) (Face, error)
		Update(ctx context.Context, ownerID, id string, uf UpdateFace) (Face, error)
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

func (svc *service) List(ctx context.Context, ownerID string) ([]Face, error) {
	return svc.repo.QueryFaces(ctx, ownerID)
}

func (svc *service) Get(ctx context.Context, ownerID, id string) (Face, error) {
	return svc.repo.GetFace(ctx, ownerID, id)
}

func (svc *service) Create(ctx context.Context, ownerID string, nf NewFace) (Face, error) {
	f, err := svc.repo.CreateFace(ctx, Face{
		OwnerID:   ownerID,
		Name:      nf.Name,
		Relation:  nf.Relation,
		ImageURL:  nf.ImageURL,
		Notes:     nf.Notes,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Face{}, errors.Wrap(err, "creating face")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionFaces, event.OpCreated, ownerID, f.ID, f))
	return f, nil
}

func (svc *service) Update(ctx context.Context, ownerID, id string, uf UpdateFace) (Face, error) {
	f, err := svc.repo.GetFace(ctx, ownerID, id)
	if err != nil {
		return Face{}, err
	}
	uf.apply(&f)
	if f, err = svc.repo.UpdateFace(ctx, f); err != nil {
		return Face{}, errors.Wrap(err, "updating face")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionFaces, event.OpUpdated, ownerID, f.ID, f))
	return f, nil
}

func (svc *service) Delete(ctx context.Context, ownerID, id string) error {
	if err := svc.repo.DeleteFace(ctx, ownerID, id); err != nil {
		return err
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionFaces, event.OpDeleted, ownerID, id, nil))
	return nil
}
