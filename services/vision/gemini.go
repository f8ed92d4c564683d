// Package vision identifies familiar faces with Gemini.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/recognition"
)

const (
	DefaultModel = "gemini-3-flash-preview"

	systemInstruction = `You are Lucidia, a gentle memory support assistant.
- Speak calmly and kindly.
- Use short, simple sentences.
- Focus on comfort and reassurance.`

	promptTemplate = `Identify the person in this photo from the following list of family and friends: [%s].

Respond ONLY with the "id" of that person if they match.
If no face is present, return "none".
If a person is present but not in the list, return "unknown".`
)

var ErrMissingAPIKey = errors.New("gemini API key is required")

// contentGenerator is the part of genai.Models the recognizer needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiRecognizer struct {
	models      contentGenerator
	model       string
	temperature float32
}

var _ recognition.Recognizer = (*GeminiRecognizer)(nil)

func NewGeminiRecognizer(ctx context.Context, conf core.VisionConfig) (*GeminiRecognizer, error) {
	if conf.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return newGeminiRecognizer(client.Models, conf), nil
}

func newGeminiRecognizer(models contentGenerator, conf core.VisionConfig) *GeminiRecognizer {
	model := conf.Model
	if model == "" {
		model = DefaultModel
	}
	return &GeminiRecognizer{
		models:      models,
		model:       model,
		temperature: float32(conf.Temperature),
	}
}

func buildPrompt(candidates []recognition.Candidate) string {
	list := make([]string, 0, len(candidates))
	for _, c := range candidates {
		b, _ := json.Marshal(struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Relation string `json:"relation"`
		}{c.ID, c.Name, c.Relation})
		list = append(list, string(b))
	}
	return fmt.Sprintf(promptTemplate, strings.Join(list, ", "))
}

// Identify returns the raw model answer: a candidate ID, "none" or "unknown".
func (r *GeminiRecognizer) Identify(ctx context.Context, image []byte, mimeType string, candidates []recognition.Candidate) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(buildPrompt(candidates)),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(r.temperature),
	}

	resp, err := r.models.GenerateContent(ctx, r.model, contents, config)
	if err != nil {
		return "", errors.Wrap(err, "generating content")
	}
	return resp.Text(), nil
}
