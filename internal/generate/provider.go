package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// Role identifies who speaks a turn in provider format.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role/content pair of the prompt.
type Turn struct {
	Role Role
	Text string
}

// StreamHandler receives each incremental unit from the provider stream:
// deltaContent from the primary channel and deltaExtra from the reasoning
// channel, either of which may be empty.
type StreamHandler func(deltaContent, deltaExtra string)

// Provider drives one inference stream against a model endpoint.
type Provider interface {
	Stream(ctx context.Context, turns []Turn, handler StreamHandler) error
}

// ProviderFactory opens a Provider for a stored model endpoint.
type ProviderFactory interface {
	Open(ctx context.Context, model *models.Model) (Provider, error)
}

// SessionStore is the injected credential store for model endpoints that
// rotate access tokens instead of using a static API key.
type SessionStore interface {
	Get(ctx context.Context, modelID string) (*models.ProviderSession, error)
	Save(ctx context.Context, session *models.ProviderSession) error
	UpdateAccessToken(ctx context.Context, modelID, accessToken string, expiresAt time.Time) error
}

// LangchainFactory builds langchaingo-backed providers for the model kinds
// the platform supports.
type LangchainFactory struct {
	sessions SessionStore
	client   *http.Client
}

// NewLangchainFactory creates the production provider factory.
func NewLangchainFactory(sessions SessionStore) *LangchainFactory {
	return &LangchainFactory{
		sessions: sessions,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Open resolves credentials and constructs the provider-specific client.
func (f *LangchainFactory) Open(ctx context.Context, model *models.Model) (Provider, error) {
	apiKey, err := f.credential(ctx, model)
	if err != nil {
		return nil, err
	}

	var llm llms.Model
	switch model.Provider {
	case models.ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model.ModelName)}
		if model.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(model.Endpoint))
		}
		llm, err = openai.New(opts...)
	case models.ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(apiKey), anthropic.WithModel(model.ModelName)}
		if model.Endpoint != "" {
			opts = append(opts, anthropic.WithBaseURL(model.Endpoint))
		}
		llm, err = anthropic.New(opts...)
	case models.ProviderGemini:
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(model.ModelName),
		)
	case models.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(model.ModelName)}
		if model.Endpoint != "" {
			opts = append(opts, ollama.WithServerURL(model.Endpoint))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, apperr.New(apperr.KindInvalid, fmt.Sprintf("unsupported provider kind %q", model.Provider))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamInference, "failed to initialize model client", err)
	}

	return &langchainProvider{llm: llm}, nil
}

// credential returns the static API key, or the session access token for
// endpoints with rotating credentials, refreshing it when close to expiry.
func (f *LangchainFactory) credential(ctx context.Context, model *models.Model) (string, error) {
	if model.APIKey != "" {
		return model.APIKey, nil
	}

	session, err := f.sessions.Get(ctx, model.ID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", apperr.New(apperr.KindInvalid, "model endpoint has no credentials")
	}

	if time.Until(session.ExpiresAt) > time.Minute {
		return session.AccessToken, nil
	}

	refreshed, expiresAt, err := f.refreshAccessToken(ctx, model.Endpoint, session.RefreshToken)
	if err != nil {
		return "", err
	}
	if err := f.sessions.UpdateAccessToken(ctx, model.ID, refreshed, expiresAt); err != nil {
		return "", err
	}
	return refreshed, nil
}

func (f *LangchainFactory) refreshAccessToken(ctx context.Context, endpoint, refreshToken string) (string, time.Time, error) {
	body, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindUpstreamInference, "failed to build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindUpstreamInference, "token refresh failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, apperr.New(apperr.KindUpstreamInference,
			fmt.Sprintf("token refresh returned status %d", resp.StatusCode))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindUpstreamInference, "malformed refresh response", err)
	}
	if out.AccessToken == "" {
		return "", time.Time{}, apperr.New(apperr.KindUpstreamInference, "refresh response missing access token")
	}

	expiresAt := time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return out.AccessToken, expiresAt, nil
}

type langchainProvider struct {
	llm llms.Model
}

// Stream runs one generation, forwarding every content and reasoning delta
// to the handler in emission order.
func (p *langchainProvider) Stream(ctx context.Context, turns []Turn, handler StreamHandler) error {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, llms.TextParts(chatMessageType(turn.Role), turn.Text))
	}

	_, err := p.llm.GenerateContent(ctx, messages,
		llms.WithStreamingReasoningFunc(func(ctx context.Context, reasoningChunk, chunk []byte) error {
			handler(string(chunk), string(reasoningChunk))
			return ctx.Err()
		}),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamInference, "model stream failed", err)
	}
	return nil
}

func chatMessageType(role Role) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
