// Package domain holds the engine's entities: Memory and its hierarchical
// wrapper, Block, graph Node/Edge, the transient Fact/Decision types, and the
// tenancy roots (spec §3.1).
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MemoryType classifies the nature of a stored memory.
type MemoryType string

const (
	MemoryEpisodic   MemoryType = "episodic"
	MemorySemantic   MemoryType = "semantic"
	MemoryProcedural MemoryType = "procedural"
	MemoryWorking    MemoryType = "working"
)

// Memory is the atomic unit persisted by the storage substrate (spec §3.1).
type Memory struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	AgentID     string         `json:"agent_id"`
	UserID      string         `json:"user_id"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata"`
	Importance  float64        `json:"importance"`
	Type        MemoryType     `json:"type"`
	Embedding   []float32      `json:"embedding,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastAccessed  time.Time  `json:"last_accessed"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	AccessCount   int64      `json:"access_count"`
	Version       int        `json:"version"`
	IsDeleted     bool       `json:"is_deleted"`
	CreatedByID   string     `json:"created_by_id"`
	LastUpdatedBy string     `json:"last_updated_by"`
}

// GetID and GetOrgID satisfy storage.Entity.
func (m Memory) GetID() string    { return m.ID }
func (m Memory) GetOrgID() string { return m.OrgID }

// HashContent computes the dedup hash spec §3.1 requires. sha256 is used
// because it is the stdlib's collision-resistant default; no pack library
// specializes in content-addressing.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Scope is the tenancy/visibility tag attached to every hierarchical memory.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeAgent   ScopeKind = "agent"
	ScopeUser    ScopeKind = "user"
	ScopeSession ScopeKind = "session"
)

// Scope is a tagged union over {Global, Agent, User, Session}. Only the
// fields relevant to Kind are populated.
type Scope struct {
	Kind      ScopeKind `json:"kind"`
	AgentID   string    `json:"agent_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

func AgentScope(agentID string) Scope {
	return Scope{Kind: ScopeAgent, AgentID: agentID}
}

func UserScope(agentID, userID string) Scope {
	return Scope{Kind: ScopeUser, AgentID: agentID, UserID: userID}
}

func SessionScope(agentID, userID, sessionID string) Scope {
	return Scope{Kind: ScopeSession, AgentID: agentID, UserID: userID, SessionID: sessionID}
}

// Level reflects a memory's long-term importance, adjusted by the promotion
// sweep (spec §3.1, §4.7).
type Level string

const (
	LevelOperational Level = "operational"
	LevelTactical    Level = "tactical"
	LevelStrategic   Level = "strategic"
)

// HierarchicalMemory pairs a Memory with its scope and level.
type HierarchicalMemory struct {
	Memory
	Scope Scope `json:"scope"`
	Level Level `json:"level"`
}

// Matches reports whether the memory is visible from the given scope: a
// Session scope sees Session/User/Agent/Global memories belonging to the
// same chain of ids; narrower scopes never see broader-scoped private data
// belonging to a different owner.
func (s Scope) Matches(other Scope) bool {
	switch other.Kind {
	case ScopeGlobal:
		return true
	case ScopeAgent:
		return s.AgentID == other.AgentID
	case ScopeUser:
		return s.AgentID == other.AgentID && s.UserID == other.UserID
	case ScopeSession:
		return s.AgentID == other.AgentID && s.UserID == other.UserID && s.SessionID == other.SessionID
	default:
		return false
	}
}
