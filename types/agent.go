package types

import (
	"encoding/json"
	"strings"
	"time"
)

type AgentType string

const (
	AgentSocialMedia      AgentType = "social_media"
	AgentDamageAssessment AgentType = "damage_assessment"
	AgentResourcePlanning AgentType = "resource_planning"
)

func (t AgentType) Valid() bool {
	switch t {
	case AgentSocialMedia, AgentDamageAssessment, AgentResourcePlanning:
		return true
	}
	return false
}

type AgentState string

const (
	AgentIdle       AgentState = "idle"
	AgentStarting   AgentState = "starting"
	AgentActive     AgentState = "active"
	AgentProcessing AgentState = "processing"
	AgentAnalyzing  AgentState = "analyzing"
	AgentWaiting    AgentState = "waiting"
	AgentCompleted  AgentState = "completed"
	AgentError      AgentState = "error"
)

func (s AgentState) Valid() bool {
	switch s {
	case AgentIdle, AgentStarting, AgentActive, AgentProcessing, AgentAnalyzing,
		AgentWaiting, AgentCompleted, AgentError:
		return true
	}
	return false
}

// ParseAgentState maps a reported status onto the known states. Agents report
// their own sub-phases ("optimizing", "plan_ready", ...) while they work;
// those count as processing. An empty status stays empty.
func ParseAgentState(s string) AgentState {
	st := AgentState(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || st.Valid() {
		return st
	}
	return AgentProcessing
}

// Running covers every state in which the stage must not be started again.
func (s AgentState) Running() bool {
	switch s {
	case AgentStarting, AgentActive, AgentProcessing, AgentAnalyzing:
		return true
	}
	return false
}

// Done reports whether a later stage may build on this one.
func (s AgentState) Done() bool {
	return s == AgentCompleted || s == AgentWaiting
}

type AgentStatus struct {
	AgentType  AgentType       `json:"agentType"`
	Status     AgentState      `json:"status"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data,omitempty"`
	LastUpdate time.Time       `json:"lastUpdate"`
}
