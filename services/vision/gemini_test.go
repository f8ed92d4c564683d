package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/recognition"
)

type fakeModels struct {
	answer   string
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.answer, genai.RoleModel)}},
	}, nil
}

func TestIdentify(t *testing.T) {
	fake := &fakeModels{answer: " f-1\n"}
	r := newGeminiRecognizer(fake, core.VisionConfig{Temperature: 0.1})

	answer, err := r.Identify(context.Background(), []byte{0xff, 0xd8}, "", []recognition.Candidate{
		{ID: "f-1", Name: "Sarah", Relation: "Daughter"},
		{ID: "f-2", Name: "Tom", Relation: "Son"},
	})
	require.NoError(t, err)
	assert.Equal(t, " f-1\n", answer)

	assert.Equal(t, DefaultModel, fake.model)
	require.Len(t, fake.contents, 1)
	parts := fake.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Contains(t, parts[1].Text, `[{"id":"f-1","name":"Sarah","relation":"Daughter"}, {"id":"f-2","name":"Tom","relation":"Son"}]`)
	assert.Contains(t, parts[1].Text, `return "unknown"`)
	assert.InDelta(t, 0.1, *fake.config.Temperature, 1e-6)
	assert.Contains(t, fake.config.SystemInstruction.Parts[0].Text, "You are Lucidia")
}

func TestIdentifyError(t *testing.T) {
	r := newGeminiRecognizer(&fakeModels{err: errors.New("quota")}, core.VisionConfig{Model: "custom"})
	_, err := r.Identify(context.Background(), nil, "image/png", nil)
	assert.Error(t, err)
}

func TestNewGeminiRecognizerRequiresKey(t *testing.T) {
	_, err := NewGeminiRecognizer(context.Background(), core.VisionConfig{})
	assert.Equal(t, ErrMissingAPIKey, err)
}
