package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"google.golang.org/genai"
)

const (
	DefaultModelName = "gemini-2.5-flash"
	// openingTurn stands in for the respondent when the interviewer speaks first
	openingTurn = "(The respondent has opened the interview page. Greet them and begin.)"
)

// Turn is one message of the conversation handed to the generator
type Turn struct {
	Role interview.Role
	Text string
}

// GenerateRequest is a single streamed generation
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Conversation []Turn
	Schema       interview.OutputSchema
}

// Generator streams structured text. onChunk receives each fragment as it
// arrives; the full text is returned once the stream ends. Any error means no
// usable response was produced.
type Generator interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(chunk string) error) (string, error)
}

// GeminiService generates interviewer turns with Gemini
type GeminiService struct {
	genaiClient  *genai.Client
	defaultModel string
}

func NewGeminiService(apiKey, model string) *GeminiService {
	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		slog.Error("Failed to create genai client", "error", err)
		return nil
	}
	if model == "" {
		model = DefaultModelName
	}

	return &GeminiService{
		genaiClient:  genaiClient,
		defaultModel: model,
	}
}

// GenerateStream implements Generator
func (g *GeminiService) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(chunk string) error) (string, error) {
	if g == nil || g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(req.Schema),
	}

	var full strings.Builder
	chunks := 0
	for resp, err := range g.genaiClient.Models.GenerateContentStream(ctx, model, buildContents(req.Conversation), config) {
		if err != nil {
			return "", fmt.Errorf("failed to stream response: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		chunks++
		full.WriteString(text)
		if onChunk != nil {
			if err := onChunk(text); err != nil {
				return "", fmt.Errorf("failed to deliver chunk: %w", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("generation aborted: %w", err)
	}
	if full.Len() == 0 {
		return "", fmt.Errorf("generator returned an empty response")
	}

	slog.Info("Generated interview response",
		"model", model,
		"schema", req.Schema,
		"chunks", chunks,
		"response_length", full.Len())

	return full.String(), nil
}

func buildContents(turns []Turn) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if turn.Role == interview.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	// The interviewer opens the conversation, but the API needs a user turn first
	if len(contents) == 0 || contents[0].Role != string(genai.RoleUser) {
		contents = append([]*genai.Content{genai.NewContentFromText(openingTurn, genai.RoleUser)}, contents...)
	}
	return contents
}

func stringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func enumSchema(description string, values ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description, Enum: values}
}

func scoreSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: "0 to 100"}
}

func reportSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary":          stringSchema("summary of the respondent's opinions"),
			"stance":           enumSchema("stance on the bill", string(interview.StanceFor), string(interview.StanceAgainst), string(interview.StanceNeutral)),
			"role":             enumSchema("respondent category", string(interview.RoleSubjectExpert), string(interview.RoleWorkRelated), string(interview.RoleDailyLifeAffected), string(interview.RoleGeneralCitizen)),
			"role_description": stringSchema("why the respondent is in that category"),
			"role_title":       stringSchema(fmt.Sprintf("compact label, at most %d characters", interview.MaxRoleTitleLen)),
			"opinions": {
				Type:        genai.TypeArray,
				Description: fmt.Sprintf("at most %d opinions", interview.MaxOpinions),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":   stringSchema("short title"),
						"content": stringSchema("the opinion"),
					},
					Required:         []string{"title", "content"},
					PropertyOrdering: []string{"title", "content"},
				},
			},
			"scores": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"total":            scoreSchema(),
					"clarity":          scoreSchema(),
					"specificity":      scoreSchema(),
					"impact":           scoreSchema(),
					"constructiveness": scoreSchema(),
					"reasoning":        stringSchema("rationale for the scores"),
				},
				Required:         []string{"total", "clarity", "specificity", "impact", "constructiveness", "reasoning"},
				PropertyOrdering: []string{"reasoning", "total", "clarity", "specificity", "impact", "constructiveness"},
			},
		},
		Required:         []string{"summary", "stance", "role", "role_description", "role_title", "opinions", "scores"},
		PropertyOrdering: []string{"summary", "stance", "role", "role_description", "role_title", "opinions", "scores"},
	}
}

// responseSchema maps the requested output shape onto a Gemini schema. The
// property ordering puts text first so partial text can stream before the
// object closes.
func responseSchema(schema interview.OutputSchema) *genai.Schema {
	stages := []string{string(interview.StageChat), string(interview.StageSummary), string(interview.StageSummaryComplete)}

	envelope := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text":        stringSchema("what the interviewer says to the respondent"),
			"question_id": stringSchema("id of the predefined question being asked"),
			"topic_title": stringSchema("short title of the current topic"),
			"next_stage":  enumSchema("stage after this turn", stages...),
		},
		Required:         []string{"text", "next_stage"},
		PropertyOrdering: []string{"text", "question_id", "topic_title", "next_stage"},
	}

	if schema == interview.SchemaReport {
		envelope.Properties["report"] = reportSchema()
		envelope.Required = append(envelope.Required, "report")
		envelope.PropertyOrdering = append(envelope.PropertyOrdering, "report")
	}
	return envelope
}
