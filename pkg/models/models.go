package models

import (
	"time"
)

// MessageType distinguishes who authored a message.
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeAgent  MessageType = "agent"
	MessageTypeSystem MessageType = "system"
)

// Message is one entry in a conversation. Content is the primary text
// channel; Extra carries the secondary "reasoning" channel emitted by some
// model providers. Both are append-only while a generation is in flight and
// are replaced wholesale exactly once at finalization.
type Message struct {
	ID             string      `json:"id" db:"id"`
	ConversationID string      `json:"conversationId" db:"conversation_id"`
	Type           MessageType `json:"type" db:"type"`
	SenderID       *string     `json:"senderId,omitempty" db:"sender_id"`
	AgentID        *string     `json:"agentId,omitempty" db:"agent_id"`
	ModelID        *string     `json:"modelId,omitempty" db:"model_id"`
	Content        string      `json:"content" db:"content"`
	Extra          string      `json:"extra" db:"extra"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`

	// TempID echoes the client-generated correlation id on the REST
	// response for user submissions. Never persisted.
	TempID string `json:"tempId,omitempty" db:"-"`

	// Display fields joined in for API responses.
	SenderName *string `json:"senderName,omitempty" db:"-"`
	AgentName  *string `json:"agentName,omitempty" db:"-"`
	ModelName  *string `json:"modelName,omitempty" db:"-"`
}

// ChunkEvent is the payload of a receive-message-chunk broadcast.
type ChunkEvent struct {
	MessageID    string `json:"messageId"`
	DeltaContent string `json:"deltaContent"`
	DeltaExtra   string `json:"deltaExtra"`
}

// ParticipantRole is a user's role within a conversation.
type ParticipantRole string

const (
	RoleCreator ParticipantRole = "creator"
	RoleAdmin   ParticipantRole = "admin"
	RoleMember  ParticipantRole = "member"
)

// Participant links one user to one conversation with a role.
type Participant struct {
	ConversationID string          `json:"conversationId" db:"conversation_id"`
	UserID         string          `json:"userId" db:"user_id"`
	Role           ParticipantRole `json:"role" db:"role"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// Conversation owns an ordered set of messages and a participant set.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Participants []Participant `json:"participants,omitempty" db:"-"`
}

// User is a platform account. Session issuance lives outside this service;
// only token validation consumes this model.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	AvatarURL *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Visibility gates who may read an agent's or model's detail fields.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Agent is a configurable persona. SystemPrompt is a detail field: it is
// cleared from API responses unless the caller owns or subscribes to the
// agent.
type Agent struct {
	ID           string     `json:"id" db:"id"`
	CreatorID    string     `json:"creatorId" db:"creator_id"`
	Name         string     `json:"name" db:"name"`
	Description  string     `json:"description" db:"description"`
	AvatarURL    *string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	SystemPrompt string     `json:"systemPrompt,omitempty" db:"system_prompt"`
	Visibility   Visibility `json:"visibility" db:"visibility"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`

	IsSubscribed    bool `json:"isSubscribed" db:"-"`
	SubscriberCount int  `json:"subscriberCount" db:"-"`
}

// ProviderKind selects which LLM backend a model endpoint speaks.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGemini    ProviderKind = "gemini"
	ProviderOllama    ProviderKind = "ollama"
)

// Model is a pluggable LLM endpoint. Endpoint and APIKey are detail fields
// with the same visibility gating as Agent.SystemPrompt.
type Model struct {
	ID         string       `json:"id" db:"id"`
	CreatorID  string       `json:"creatorId" db:"creator_id"`
	Name       string       `json:"name" db:"name"`
	Provider   ProviderKind `json:"provider" db:"provider"`
	ModelName  string       `json:"modelName" db:"model_name"`
	Endpoint   string       `json:"endpoint,omitempty" db:"endpoint"`
	APIKey     string       `json:"-" db:"api_key"`
	Visibility Visibility   `json:"visibility" db:"visibility"`
	CreatedAt  time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time    `json:"updatedAt" db:"updated_at"`

	IsSubscribed    bool `json:"isSubscribed" db:"-"`
	SubscriberCount int  `json:"subscriberCount" db:"-"`
}

// SubscriptionTarget says whether a subscription points at an agent or a
// model.
type SubscriptionTarget string

const (
	SubscriptionAgent SubscriptionTarget = "agent"
	SubscriptionModel SubscriptionTarget = "model"
)

// Subscription is a many-to-many join between a user and an agent or model.
type Subscription struct {
	UserID    string             `json:"userId" db:"user_id"`
	Target    SubscriptionTarget `json:"target" db:"target"`
	TargetID  string             `json:"targetId" db:"target_id"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
}

// ProviderSession holds refreshable credentials for a model endpoint that
// hands out short-lived access tokens instead of a static API key.
type ProviderSession struct {
	ModelID      string    `json:"modelId" db:"model_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expiresAt" db:"expires_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
