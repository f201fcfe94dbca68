package security

import (
	"strconv"
	"time"
)

// Credential is the view of an item the calculator scores.
type Credential struct {
	ID           string
	Name         string
	Password     string
	RevisionDate string
}

// SecurityScore represents the overall security assessment of a vault.
type SecurityScore struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected security issues.
	Issues []SecurityIssue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
	// Scanned is the number of credentials examined.
	Scanned int `json:"scanned"`
}

// Component weights. They sum to 100.
const (
	strengthWeight   = 40
	uniquenessWeight = 30
	freshnessWeight  = 30
)

// ScoreComponents breaks down the security score into categories.
type ScoreComponents struct {
	// StrengthScore is based on average password strength (0-40).
	StrengthScore int `json:"strength"`
	// UniquenessScore is based on the share of unique passwords (0-30).
	UniquenessScore int `json:"uniqueness"`
	// FreshnessScore is based on the share of recently revised items (0-30).
	FreshnessScore int `json:"freshness"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	// IssueWeakPassword indicates a password with insufficient strength.
	IssueWeakPassword IssueType = "weak"
	// IssueDuplicatePassword indicates passwords reused across items.
	IssueDuplicatePassword IssueType = "duplicate"
	// IssueStale indicates a credential not revised for a long time.
	IssueStale IssueType = "stale"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	// ItemID is the affected item; empty unless ids were requested.
	ItemID string `json:"item_id,omitempty"`
	// ItemIDs is used for duplicate issues.
	ItemIDs     []string `json:"item_ids,omitempty"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// Calculator computes security scores.
type Calculator struct {
	now     func() time.Time
	hmacKey []byte // Session-local key for duplicate detection
}

// NewCalculator creates a calculator that measures age against now.
func NewCalculator(now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{now: now}
}

// Report scores creds. Item ids are attached to issues only when includeIDs
// is set, so a report can be shared without identifying entries.
func (c *Calculator) Report(creds []Credential, includeIDs bool) (*SecurityScore, error) {
	if len(creds) == 0 {
		return &SecurityScore{
			Overall: 100,
			Components: ScoreComponents{
				StrengthScore:   strengthWeight,
				UniquenessScore: uniquenessWeight,
				FreshnessScore:  freshnessWeight,
			},
			Issues:      []SecurityIssue{},
			Suggestions: []string{},
		}, nil
	}

	strengthScore, weakIssues := c.strengthScore(creds, includeIDs)
	uniquenessScore, dupIssues, err := c.uniquenessScore(creds, includeIDs)
	if err != nil {
		return nil, err
	}
	freshnessScore, staleIssues := c.freshnessScore(creds, includeIDs)

	issues := make([]SecurityIssue, 0, len(weakIssues)+len(dupIssues)+len(staleIssues))
	issues = append(issues, weakIssues...)
	issues = append(issues, dupIssues...)
	issues = append(issues, staleIssues...)

	return &SecurityScore{
		Overall: strengthScore + uniquenessScore + freshnessScore,
		Components: ScoreComponents{
			StrengthScore:   strengthScore,
			UniquenessScore: uniquenessScore,
			FreshnessScore:  freshnessScore,
		},
		Issues:      issues,
		Suggestions: generateSuggestions(issues),
		Scanned:     len(creds),
	}, nil
}

// strengthScore averages password strength. Items without a password do
// not count.
func (c *Calculator) strengthScore(creds []Credential, includeIDs bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	totalPoints := 0
	passwordCount := 0

	for _, cred := range creds {
		if cred.Password == "" {
			continue
		}
		passwordCount++
		strength := CalculateStrength(cred.Password)
		totalPoints += strength.Points()

		if strength == PasswordWeak {
			issue := SecurityIssue{
				Type:        IssueWeakPassword,
				Severity:    SeverityWarning,
				Description: "Password has insufficient strength",
				Suggestion:  "Use a longer password (14+ characters recommended)",
			}
			if includeIDs {
				issue.ItemID = cred.ID
			}
			issues = append(issues, issue)
		}
	}

	if passwordCount == 0 {
		return strengthWeight, issues
	}
	return totalPoints * strengthWeight / (passwordCount * maxPoints), issues
}

func (c *Calculator) uniquenessScore(creds []Credential, includeIDs bool) (int, []SecurityIssue, error) {
	groups, err := c.FindDuplicates(creds, includeIDs)
	if err != nil {
		return 0, nil, err
	}

	total := 0
	for _, cred := range creds {
		if normalizeValue(cred.Password) != "" {
			total++
		}
	}
	if total == 0 {
		return uniquenessWeight, nil, nil
	}

	reused := 0
	var issues []SecurityIssue
	for _, g := range groups {
		// One member of each group keeps its password
		reused += g.Count - 1
		issue := SecurityIssue{
			Type:        IssueDuplicatePassword,
			Severity:    SeverityWarning,
			Description: strconv.Itoa(g.Count) + " items share the same password",
			Suggestion:  "Use unique passwords for each item",
		}
		if includeIDs {
			issue.ItemIDs = g.ItemIDs
		}
		issues = append(issues, issue)
	}

	unique := total - reused
	return unique * uniquenessWeight / total, issues, nil
}

func (c *Calculator) freshnessScore(creds []Credential, includeIDs bool) (int, []SecurityIssue) {
	now := c.now()
	var issues []SecurityIssue
	fresh := 0

	for _, cred := range creds {
		days, _ := AgeDays(cred.RevisionDate, now)
		level := ClassifyAge(cred.RevisionDate, now)
		if level == AgeNone {
			fresh++
			continue
		}

		issue := SecurityIssue{
			Type:        IssueStale,
			Severity:    SeverityWarning,
			Description: "Not changed for " + formatDays(days),
			Suggestion:  "Rotate credentials older than six months",
		}
		if level == AgeCritical {
			issue.Severity = SeverityCritical
			issue.Suggestion = "Rotate this credential now"
		}
		if includeIDs {
			issue.ItemID = cred.ID
		}
		issues = append(issues, issue)
	}

	return fresh * freshnessWeight / len(creds), issues
}

// generateSuggestions creates actionable recommendations based on issues.
func generateSuggestions(issues []SecurityIssue) []string {
	suggestions := []string{}
	hasWeak := false
	hasDuplicate := false
	hasStale := false
	hasCritical := false

	for _, issue := range issues {
		switch issue.Type {
		case IssueWeakPassword:
			hasWeak = true
		case IssueDuplicatePassword:
			hasDuplicate = true
		case IssueStale:
			hasStale = true
			if issue.Severity == SeverityCritical {
				hasCritical = true
			}
		}
	}

	if hasWeak {
		suggestions = append(suggestions, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	if hasDuplicate {
		suggestions = append(suggestions, "Replace duplicate passwords with unique values")
	}
	if hasCritical {
		suggestions = append(suggestions, "Rotate credentials unchanged for over a year immediately")
	} else if hasStale {
		suggestions = append(suggestions, "Plan to rotate credentials unchanged for over six months")
	}
	return suggestions
}

// formatDays returns a human-readable day count.
func formatDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}
