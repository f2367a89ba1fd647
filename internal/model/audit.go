package model

import "time"

type AuditActor struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	IP       string `json:"ip,omitempty"`
}

type AuditEntry struct {
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Resource   string     `json:"resource,omitempty"`
	Before     any        `json:"before,omitempty"`
	After      any        `json:"after,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// AuditQuery filters the admin audit view. Zero values match everything.
type AuditQuery struct {
	Types          []string
	ActorUsername  string
	ActorRole      Role
	Outcome        string
	ResourcePrefix string
	From           time.Time
	To             time.Time
	Page           int
	Limit          int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
