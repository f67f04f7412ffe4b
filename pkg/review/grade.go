package review

// Grade bands. Fixed thresholds; display labels can be remapped by the
// caller's label dictionary.
const (
	GradeUnassessed       = "unassessed"
	GradeMasterwork       = "masterwork"
	GradeExcellent        = "excellent"
	GradeGood             = "good"
	GradePassing          = "passing"
	GradeNeedsImprovement = "needs-improvement"
)

// Grade maps an average score to its qualitative band. assessed is
// false when the payload carried no score information at all, which
// maps to GradeUnassessed rather than the lowest band.
func Grade(avgScore float64, assessed bool) string {
	if !assessed {
		return GradeUnassessed
	}
	switch {
	case avgScore >= 9:
		return GradeMasterwork
	case avgScore >= 8:
		return GradeExcellent
	case avgScore >= 7:
		return GradeGood
	case avgScore >= 6:
		return GradePassing
	default:
		return GradeNeedsImprovement
	}
}
