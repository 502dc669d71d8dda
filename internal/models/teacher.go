package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Teacher represents an instructor record.
type Teacher struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"userId"`
	Code      string         `db:"code" json:"code"`
	FullName  string         `db:"full_name" json:"fullName"`
	Email     string         `db:"email" json:"email"`
	BranchID  string         `db:"branch_id" json:"branchId"`
	Skills    pq.StringArray `db:"skills" json:"skills"`
	Active    bool           `db:"active" json:"active"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// HasSkill reports whether skill is listed, ignoring case.
func (t Teacher) HasSkill(skill string) bool {
	for _, s := range t.Skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// SwapCandidate is a ranked replacement suggestion for a session.
type SwapCandidate struct {
	Teacher     Teacher  `json:"teacher"`
	Available   bool     `json:"available"`
	SkillMatch  bool     `json:"skillMatch"`
	ConflictIDs []string `json:"conflictSessionIds,omitempty"`
}
