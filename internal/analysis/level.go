package analysis

type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
)

// LevelFor bands a 0-100 threat score.
func LevelFor(score float64) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	}
	return LevelLow
}
