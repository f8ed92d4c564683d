package recognition

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/face"
)

type faceStub struct {
	face.Service
	faces   []face.Face
	created []face.NewFace
}

func (s *faceStub) List(context.Context, string) ([]face.Face, error) { return s.faces, nil }

func (s *faceStub) Create(_ context.Context, ownerID string, nf face.NewFace) (face.Face, error) {
	s.created = append(s.created, nf)
	return face.Face{ID: "new", OwnerID: ownerID, Name: nf.Name, Relation: nf.Relation}, nil
}

type recognizerFunc func(candidates []Candidate) (string, error)

func (f recognizerFunc) Identify(_ context.Context, _ []byte, _ string, candidates []Candidate) (string, error) {
	return f(candidates)
}

var image = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg bytes"))

func TestDecodeDataURL(t *testing.T) {
	data, mime, err := DecodeDataURL(image)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, []byte("jpeg bytes"), data)

	for _, bad := range []string{"", "https://example.com/a.png", "data:image/png;base64,***", "data:text/plain;base64,aGk="} {
		_, _, err = DecodeDataURL(bad)
		assert.Equal(t, ErrInvalidImage, err, bad)
	}
}

func TestService_Recognize(t *testing.T) {
	ctx := context.Background()
	faces := &faceStub{faces: []face.Face{
		{ID: "f-sarah", Name: "Sarah Connor", Relation: "Daughter"},
		{ID: "f-john", Name: "John", Relation: "Son"},
	}}

	var answer string
	var gotCandidates []Candidate
	svc := NewService(faces, recognizerFunc(func(candidates []Candidate) (string, error) {
		gotCandidates = candidates
		return answer, nil
	}))

	steps := []struct {
		name       string
		answer     string
		wantStatus string
		wantFace   string
		wantSpeech string
	}{
		{name: "by id", answer: "f-sarah", wantStatus: StatusRecognized, wantFace: "f-sarah",
			wantSpeech: "That is Sarah Connor, your Daughter. They are so happy to see you."},
		{name: "same person stays silent", answer: " F-SARAH\n", wantStatus: StatusRecognized, wantFace: "f-sarah"},
		{name: "by partial name", answer: "John", wantStatus: StatusRecognized, wantFace: "f-john",
			wantSpeech: "That is John, your Son. They are so happy to see you."},
		{name: "unknown", answer: "unknown", wantStatus: StatusNotFound, wantSpeech: speechNewPerson},
		{name: "still unknown", answer: "unknown", wantStatus: StatusNotFound},
		{name: "empty answer is unknown", answer: "", wantStatus: StatusNotFound},
		{name: "no face", answer: "none", wantStatus: StatusIdle},
		{name: "unknown again after idle", answer: "unknown", wantStatus: StatusNotFound, wantSpeech: speechNewPerson},
		{name: "unmatched answer", answer: "f-ghost", wantStatus: StatusNotFound},
	}
	for _, st := range steps {
		answer = st.answer
		res, err := svc.Recognize(ctx, "p1", image)
		require.NoError(t, err, st.name)
		assert.Equal(t, st.wantStatus, res.Status, st.name)
		assert.Equal(t, st.wantSpeech, res.Speech, st.name)
		if st.wantFace != "" {
			require.NotNil(t, res.Face, st.name)
			assert.Equal(t, st.wantFace, res.Face.ID, st.name)
		} else {
			assert.Nil(t, res.Face, st.name)
		}
	}
	assert.Equal(t, []Candidate{
		{ID: "f-sarah", Name: "Sarah Connor", Relation: "Daughter"},
		{ID: "f-john", Name: "John", Relation: "Son"},
	}, gotCandidates)

	// owners do not share state
	answer = "f-john"
	res, err := svc.Recognize(ctx, "p2", image)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Speech)
}

func TestService_Recognize_errors(t *testing.T) {
	ctx := context.Background()
	faces := &faceStub{}

	_, err := NewService(faces, nil).Recognize(ctx, "p1", image)
	assert.Equal(t, ErrUnavailable, err)

	svc := NewService(faces, recognizerFunc(func([]Candidate) (string, error) { return "", errors.New("quota exceeded") }))
	res, err := svc.Recognize(ctx, "p1", image)
	assert.Error(t, err)
	assert.Equal(t, StatusError, res.Status)

	_, err = svc.Recognize(ctx, "p1", "not an image")
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "image", vErr.Fields[0].Field)
}

func TestService_RememberNewPerson(t *testing.T) {
	ctx := context.Background()
	faces := &faceStub{}
	svc := NewService(faces, recognizerFunc(func([]Candidate) (string, error) { return "unknown", nil }))

	res, err := svc.Recognize(ctx, "p1", image)
	require.NoError(t, err)
	assert.Equal(t, speechNewPerson, res.Speech)

	res, err = svc.RememberNewPerson(ctx, "p1", image)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, res.Status)
	assert.Equal(t, speechSaved, res.Speech)
	require.Len(t, faces.created, 1)
	assert.Equal(t, face.NewFace{Name: "New Friend", Relation: "Visitor", ImageURL: image, Notes: "I met this person today. They were very kind."}, faces.created[0])

	// state was reset: the next unknown face is announced again
	res, err = svc.Recognize(ctx, "p1", image)
	require.NoError(t, err)
	assert.Equal(t, speechNewPerson, res.Speech)
}
