package models

import (
	"fmt"
	"time"
)

// FileStatus describes what happened to a file in a pull request.
type FileStatus string

const (
	StatusAdded    FileStatus = "added"
	StatusRemoved  FileStatus = "removed"
	StatusModified FileStatus = "modified"
	StatusRenamed  FileStatus = "renamed"
)

// LanguageUnknown is the sentinel for extensions we have no mapping for.
// It is always set explicitly so downstream code never sees an empty language.
const LanguageUnknown = "unknown"

// FileChange is one reviewable file extracted from a raw unified diff.
// CleanedContent holds only added and adjacent context lines with the diff
// markers stripped; it never contains hunk or file headers.
type FileChange struct {
	Filename        string     `json:"filename"`
	Language        string     `json:"language"`
	CleanedContent  string     `json:"cleaned_content"`
	Status          FileStatus `json:"status"`
	Additions       int        `json:"additions"`
	Deletions       int        `json:"deletions"`
	SecretSuspected bool       `json:"secret_suspected"`
}

// PromptUnit is a single LLM review request. Large files produce several
// units that share a Filename and carry ascending ChunkIndex values.
type PromptUnit struct {
	Filename   string `json:"filename"`
	PromptText string `json:"prompt_text"`
	ChunkIndex int    `json:"chunk_index"`
	ChunkCount int    `json:"chunk_count"`
}

// Severity levels for review findings, ordered from least to most severe.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category classifies what kind of problem a finding describes.
type Category string

const (
	CategoryBug          Category = "bug"
	CategorySecurity     Category = "security"
	CategoryPerformance  Category = "performance"
	CategoryQuality      Category = "quality"
	CategoryBestPractice Category = "best-practice"
)

// ReviewFinding is a single issue reported against a file. Line is zero when
// the model could not attribute the issue to a specific line.
type ReviewFinding struct {
	File        string   `json:"file"`
	Line        int      `json:"line,omitempty"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// DedupKey is the identity used when collapsing duplicate findings that
// different chunks of the same file reported independently.
func (f ReviewFinding) DedupKey() string {
	return fmt.Sprintf("%s:%d:%s", f.File, f.Line, f.Description)
}

// Usage accumulates token consumption across LLM calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add merges another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// AggregatedReview is the merged output of all per-unit LLM calls for one
// pull request. RiskScore is always the deterministic server-side score,
// never the number the model returned.
type AggregatedReview struct {
	Summary   string          `json:"summary"`
	Findings  []ReviewFinding `json:"findings"`
	RiskScore int             `json:"risk_score"`
	Usage     Usage           `json:"usage"`
	Partial   bool            `json:"partial"`
}

// Policy holds per-repository blocking thresholds. A nil policy means the
// repository never blocks.
type Policy struct {
	BlockRiskThreshold         int  `json:"block_risk_threshold"`
	BlockOnHighSeveritySecurity bool `json:"block_on_high_severity_security"`
	MaxIssueCount              int  `json:"max_issue_count"`
}

// PolicyDecision is derived from an AggregatedReview and a Policy. It is
// attached to the review record, never persisted on its own.
type PolicyDecision struct {
	IsBlocked bool   `json:"is_blocked"`
	Reason    string `json:"reason,omitempty"`
}

// PullRequest carries the PR metadata extracted from a webhook payload that
// the pipeline needs to fetch the diff and post the result.
type PullRequest struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	Number         int    `json:"number"`
	Title          string `json:"title"`
	HeadSHA        string `json:"head_sha"`
	InstallationID int64  `json:"installation_id"`
}

// FullName returns the owner/repo form used as the repository key.
func (pr PullRequest) FullName() string {
	return pr.Owner + "/" + pr.Repo
}

// Review lifecycle statuses as persisted.
const (
	ReviewStatusCompleted = "completed"
	ReviewStatusPartial   = "partial"
	ReviewStatusNoChanges = "no_changes"
)

// ReviewRecord is the persisted outcome of one completed review job.
type ReviewRecord struct {
	ID          int64     `json:"id"`
	RepoID      int64     `json:"repo_id"`
	PRNumber    int       `json:"pr_number"`
	HeadSHA     string    `json:"head_sha"`
	DeliveryID  string    `json:"delivery_id"`
	Status      string    `json:"status"`
	Verb        string    `json:"verb"`
	Summary     string    `json:"summary"`
	RiskScore   int       `json:"risk_score"`
	Blocked     bool      `json:"blocked"`
	BlockReason string    `json:"block_reason,omitempty"`
	Partial     bool      `json:"partial"`
	Usage       Usage     `json:"usage"`
	TraceID     string    `json:"trace_id"`
	CreatedAt   time.Time `json:"created_at"`
}
