package domain

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single conversation turn (spec §3.1).
type Message struct {
	ID      string `json:"id"`
	OrgID   string `json:"org_id"`
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`

	Role    Role           `json:"role"`
	Text    string         `json:"text"`
	Content map[string]any `json:"content,omitempty"` // structured content, when present

	Model      string `json:"model,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// GetID and GetOrgID satisfy storage.Entity.
func (m Message) GetID() string    { return m.ID }
func (m Message) GetOrgID() string { return m.OrgID }

// Tool is a registered function an agent may invoke.
type Tool struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	JSONSchema  map[string]any `json:"json_schema,omitempty"`
	SourceType  string         `json:"source_type,omitempty"`
	SourceCode  string         `json:"source_code,omitempty"`
	Tags        []string       `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// GetID and GetOrgID satisfy storage.Entity.
func (t Tool) GetID() string    { return t.ID }
func (t Tool) GetOrgID() string { return t.OrgID }

// Tenancy roots (spec §3.1, §3.2): Organization / User / Agent all carry
// soft-delete and audit fields.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	IsDeleted     bool      `json:"is_deleted"`
	CreatedByID   string    `json:"created_by_id"`
	LastUpdatedBy string    `json:"last_updated_by"`
}

// GetID and GetOrgID satisfy storage.Entity. An Organization is its own
// tenant root, so both accessors return ID.
func (o Organization) GetID() string    { return o.ID }
func (o Organization) GetOrgID() string { return o.ID }

type User struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	IsDeleted     bool      `json:"is_deleted"`
	CreatedByID   string    `json:"created_by_id"`
	LastUpdatedBy string    `json:"last_updated_by"`
}

// GetID and GetOrgID satisfy storage.Entity.
func (u User) GetID() string    { return u.ID }
func (u User) GetOrgID() string { return u.OrgID }

type Agent struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Name  string `json:"name"`

	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	IsDeleted     bool      `json:"is_deleted"`
	CreatedByID   string    `json:"created_by_id"`
	LastUpdatedBy string    `json:"last_updated_by"`
}

// GetID and GetOrgID satisfy storage.Entity.
func (a Agent) GetID() string    { return a.ID }
func (a Agent) GetOrgID() string { return a.OrgID }
