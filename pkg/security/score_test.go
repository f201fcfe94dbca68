package security

import (
	"testing"
	"time"
)

func newTestCalculator() *Calculator {
	return NewCalculator(func() time.Time { return now })
}

func TestReportEmpty(t *testing.T) {
	score, err := newTestCalculator().Report(nil, false)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if score.Overall != 100 {
		t.Errorf("expected 100 for empty vault, got %d", score.Overall)
	}
	if len(score.Issues) != 0 {
		t.Errorf("expected no issues, got %d", len(score.Issues))
	}
}

func TestReportPerfect(t *testing.T) {
	creds := []Credential{
		{ID: "i1", Password: "correct-horse-battery-staple", RevisionDate: daysAgo(10)},
		{ID: "i2", Password: "another-long-passphrase-here", RevisionDate: daysAgo(20)},
	}
	score, err := newTestCalculator().Report(creds, true)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if score.Overall != 100 {
		t.Errorf("expected 100, got %d (%+v)", score.Overall, score.Components)
	}
	if score.Scanned != 2 {
		t.Errorf("expected 2 scanned, got %d", score.Scanned)
	}
}

func TestReportIssues(t *testing.T) {
	creds := []Credential{
		{ID: "weak", Password: "abc", RevisionDate: daysAgo(10)},
		{ID: "dup1", Password: "shared-password-value", RevisionDate: daysAgo(200)},
		{ID: "dup2", Password: " shared-password-value ", RevisionDate: daysAgo(400)},
		{ID: "nopass", RevisionDate: ""},
	}

	t.Run("with ids", func(t *testing.T) {
		score, err := newTestCalculator().Report(creds, true)
		if err != nil {
			t.Fatalf("Report failed: %v", err)
		}

		counts := map[IssueType]int{}
		for _, issue := range score.Issues {
			counts[issue.Type]++
			switch issue.Type {
			case IssueWeakPassword:
				if issue.ItemID != "weak" {
					t.Errorf("expected weak issue for 'weak', got %q", issue.ItemID)
				}
			case IssueDuplicatePassword:
				if len(issue.ItemIDs) != 2 {
					t.Errorf("expected 2 ids in duplicate issue, got %v", issue.ItemIDs)
				}
			case IssueStale:
				if issue.ItemID == "dup2" && issue.Severity != SeverityCritical {
					t.Errorf("expected critical severity for 400 days, got %s", issue.Severity)
				}
				if issue.ItemID == "dup1" && issue.Severity != SeverityWarning {
					t.Errorf("expected warning severity for 200 days, got %s", issue.Severity)
				}
			}
		}
		if counts[IssueWeakPassword] != 1 || counts[IssueDuplicatePassword] != 1 || counts[IssueStale] != 2 {
			t.Errorf("unexpected issue counts: %v", counts)
		}

		// 3 passwords: weak(0) + strong(25) + strong(25) of 75 points
		if score.Components.StrengthScore != 50*strengthWeight/75 {
			t.Errorf("unexpected strength score %d", score.Components.StrengthScore)
		}
		// 3 passwords, 1 reused
		if score.Components.UniquenessScore != 2*uniquenessWeight/3 {
			t.Errorf("unexpected uniqueness score %d", score.Components.UniquenessScore)
		}
		// 2 of 4 items fresh
		if score.Components.FreshnessScore != freshnessWeight/2 {
			t.Errorf("unexpected freshness score %d", score.Components.FreshnessScore)
		}
		if len(score.Suggestions) != 3 {
			t.Errorf("expected 3 suggestions, got %v", score.Suggestions)
		}
	})

	t.Run("without ids", func(t *testing.T) {
		score, err := newTestCalculator().Report(creds, false)
		if err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		for _, issue := range score.Issues {
			if issue.ItemID != "" || len(issue.ItemIDs) != 0 {
				t.Errorf("expected no ids, got %+v", issue)
			}
		}
	})
}

func TestFindDuplicates(t *testing.T) {
	c := newTestCalculator()
	creds := []Credential{
		{ID: "a", Password: "one"},
		{ID: "b", Password: "two"},
		{ID: "c", Password: "one"},
		{ID: "d", Password: "two"},
		{ID: "e", Password: "two"},
		{ID: "f", Password: ""},
		{ID: "g", Password: ""},
	}

	groups, err := c.FindDuplicates(creds, true)
	if err != nil {
		t.Fatalf("FindDuplicates failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Count != 3 || groups[1].Count != 2 {
		t.Errorf("expected groups ordered by size, got %+v", groups)
	}

	// Keys are per calculator
	other := newTestCalculator()
	if _, err := other.FindDuplicates(creds, false); err != nil {
		t.Fatalf("FindDuplicates failed: %v", err)
	}
	if string(other.hmacKey) == string(c.hmacKey) {
		t.Error("expected independent HMAC keys")
	}
}
