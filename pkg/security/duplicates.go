package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DuplicateGroup is a set of credentials sharing one password.
type DuplicateGroup struct {
	// ItemIDs lists the affected items; empty unless ids were requested.
	ItemIDs []string `json:"item_ids,omitempty"`
	// Count is the number of credentials in the group.
	Count int `json:"count"`
}

// FindDuplicates groups credentials by password. Passwords are compared by
// HMAC-SHA256 under a key generated for this Calculator, so no comparable
// digest outlives the process. Groups are ordered largest first.
func (c *Calculator) FindDuplicates(creds []Credential, includeIDs bool) ([]DuplicateGroup, error) {
	if err := c.ensureKey(); err != nil {
		return nil, err
	}

	byHash := make(map[string][]string)
	var order []string
	for _, cred := range creds {
		value := normalizeValue(cred.Password)
		if value == "" {
			continue
		}
		hash := computeValueHash(value, c.hmacKey)
		if _, seen := byHash[hash]; !seen {
			order = append(order, hash)
		}
		byHash[hash] = append(byHash[hash], cred.ID)
	}

	var groups []DuplicateGroup
	for _, hash := range order {
		ids := byHash[hash]
		if len(ids) <= 1 {
			continue
		}
		group := DuplicateGroup{Count: len(ids)}
		if includeIDs {
			group.ItemIDs = ids
		}
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups, nil
}

func (c *Calculator) ensureKey() error {
	if c.hmacKey != nil {
		return nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	c.hmacKey = key
	return nil
}

// computeValueHash computes HMAC-SHA256 of a value with the session key.
func computeValueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeValue trims surrounding whitespace and applies NFC so that the
// same password typed on different platforms compares equal.
func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
