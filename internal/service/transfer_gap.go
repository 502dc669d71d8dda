package service

import (
	"sort"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

const (
	gapRecommendationNone  = "No content gap: the student can join the target class directly."
	gapRecommendationMinor = "Review the materials of the missed topics before the first session in the target class."
	gapRecommendationMajor = "Arrange a counseling session with academic staff before transferring."
)

// AnalyzeContentGap counts the course sessions the target class has already covered
// (DONE or CANCELLED) that the current class has not.
func AnalyzeContentGap(current, target []models.CourseSessionProgress) models.ContentGap {
	covered := make(map[int]struct{}, len(current))
	for _, p := range current {
		covered[p.Sequence] = struct{}{}
	}

	seen := make(map[int]struct{}, len(target))
	missed := make([]models.GapSession, 0)
	for _, p := range target {
		if _, ok := covered[p.Sequence]; ok {
			continue
		}
		if _, dup := seen[p.Sequence]; dup {
			continue
		}
		seen[p.Sequence] = struct{}{}
		missed = append(missed, models.GapSession{CourseSessionID: p.CourseSessionID, Sequence: p.Sequence, Topic: p.Topic})
	}
	sort.Slice(missed, func(i, j int) bool { return missed[i].Sequence < missed[j].Sequence })

	gap := models.ContentGap{MissedCount: len(missed), GapSessions: missed}
	switch {
	case len(missed) == 0:
		gap.Level = models.ContentGapNone
		gap.Recommendation = gapRecommendationNone
	case len(missed) <= 2:
		gap.Level = models.ContentGapMinor
		gap.Recommendation = gapRecommendationMinor
	default:
		gap.Level = models.ContentGapMajor
		gap.Recommendation = gapRecommendationMajor
	}
	return gap
}

// transferTier classifies a move between two classes.
func transferTier(from, to models.Class) models.TransferTier {
	if from.BranchID != to.BranchID || from.Modality != to.Modality {
		return models.TransferTierStaffApproval
	}
	return models.TransferTierSelfService
}
