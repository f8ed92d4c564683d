// Package recognition tells the patient who is in front of the camera.
package recognition

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/face"
)

// Statuses
const (
	StatusIdle       = "idle"
	StatusRecognized = "recognized"
	StatusNotFound   = "not-found"
	StatusSaved      = "saved"
	StatusError      = "error"
)

// Recognizer answers
const (
	AnswerNone    = "none"
	AnswerUnknown = "unknown"
)

const (
	speechNewPerson = "I see someone new. Would you like me to remember them for you?"
	speechSaved     = "I have saved this friend to your gallery. I will remember them next time."

	newPersonName     = "New Friend"
	newPersonRelation = "Visitor"
	newPersonNotes    = "I met this person today. They were very kind."
)

var (
	ErrUnavailable  = errors.New("face recognition is not configured")
	ErrInvalidImage = errors.New("image must be a base64 encoded data URL")

	dataURLRegex = regexp.MustCompile(`^data:(image/[a-zA-Z0-9.+-]+);base64,(.+)$`)
)

type Candidate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Relation string `json:"relation"`
}

// Recognizer identifies the person in an image among candidates.
// It answers with a candidate ID, AnswerNone when no face is visible or AnswerUnknown.
type Recognizer interface {
	Identify(ctx context.Context, image []byte, mimeType string, candidates []Candidate) (string, error)
}

type Result struct {
	Status string     `json:"status"`
	Face   *face.Face `json:"face,omitempty"`
	Speech string     `json:"speech,omitempty"` // only set when the identity changed
}

type CaptureRequest struct {
	Image string `json:"image" validate:"required"` // data:image/...;base64,...
}

func (cr *CaptureRequest) Validate(validate *validator.Validate) error {
	cr.Image = core.CleanString(cr.Image)
	return validate.Struct(cr)
}

// DecodeDataURL splits a base64 data URL into its bytes and mime type.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	m := dataURLRegex.FindStringSubmatch(strings.TrimSpace(dataURL))
	if m == nil {
		return nil, "", ErrInvalidImage
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return nil, "", ErrInvalidImage
	}
	return data, m[1], nil
}

type (
	Service interface {
		Recognize(ctx context.Context, ownerID, imageDataURL string) (Result, error)
		RememberNewPerson(ctx context.Context, ownerID, imageDataURL string) (Result, error)
		// Reset forgets the last identity, as when the camera is turned off.
		Reset(ownerID string)
	}

	service struct {
		faceSvc    face.Service
		recognizer Recognizer

		mu   sync.Mutex
		last map[string]string // {ownerID: face ID | AnswerUnknown}
	}
)

var _ Service = (*service)(nil)

// NewService returns a recognition Service; a nil recognizer makes Recognize fail with ErrUnavailable.
func NewService(faceSvc face.Service, recognizer Recognizer) Service {
	vala.BeginValidation().Validate(vala.IsNotNil(faceSvc, "faceSvc")).CheckAndPanic()
	return &service{
		faceSvc:    faceSvc,
		recognizer: recognizer,
		last:       make(map[string]string),
	}
}

// swapLast records identity as the owner's last one and reports whether it changed.
func (svc *service) swapLast(ownerID, identity string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	changed := svc.last[ownerID] != identity
	if identity == "" {
		delete(svc.last, ownerID)
	} else {
		svc.last[ownerID] = identity
	}
	return changed
}

func (svc *service) Reset(ownerID string) {
	svc.swapLast(ownerID, "")
}

func (svc *service) Recognize(ctx context.Context, ownerID, imageDataURL string) (Result, error) {
	if svc.recognizer == nil {
		return Result{}, ErrUnavailable
	}
	img, mimeType, err := DecodeDataURL(imageDataURL)
	if err != nil {
		return Result{}, core.NewValidationError(err, core.FieldError{Field: "image", Error: err.Error()})
	}

	faces, err := svc.faceSvc.List(ctx, ownerID)
	if err != nil {
		return Result{}, errors.Wrap(err, "listing faces")
	}
	candidates := make([]Candidate, 0, len(faces))
	for _, f := range faces {
		candidates = append(candidates, Candidate{ID: f.ID, Name: f.Name, Relation: f.Relation})
	}

	answer, err := svc.recognizer.Identify(ctx, img, mimeType, candidates)
	if err != nil {
		return Result{Status: StatusError}, errors.Wrap(err, "identifying face")
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		answer = AnswerUnknown
	}

	switch answer {
	case AnswerNone:
		svc.swapLast(ownerID, "")
		return Result{Status: StatusIdle}, nil
	case AnswerUnknown:
		res := Result{Status: StatusNotFound}
		if svc.swapLast(ownerID, AnswerUnknown) {
			res.Speech = speechNewPerson
		}
		return res, nil
	}

	for i := range faces {
		f := faces[i]
		if strings.ToLower(f.ID) == answer || strings.Contains(strings.ToLower(f.Name), answer) {
			res := Result{Status: StatusRecognized, Face: &f}
			if svc.swapLast(ownerID, f.ID) {
				res.Speech = fmt.Sprintf("That is %s, your %s. They are so happy to see you.", f.Name, f.Relation)
			}
			return res, nil
		}
	}
	return Result{Status: StatusNotFound}, nil
}

func (svc *service) RememberNewPerson(ctx context.Context, ownerID, imageDataURL string) (Result, error) {
	if _, _, err := DecodeDataURL(imageDataURL); err != nil {
		return Result{}, core.NewValidationError(err, core.FieldError{Field: "image", Error: err.Error()})
	}
	f, err := svc.faceSvc.Create(ctx, ownerID, face.NewFace{
		Name:     newPersonName,
		Relation: newPersonRelation,
		ImageURL: imageDataURL,
		Notes:    newPersonNotes,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "saving new person")
	}
	svc.swapLast(ownerID, "")
	return Result{Status: StatusSaved, Face: &f, Speech: speechSaved}, nil
}
