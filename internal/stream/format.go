package stream

import "github.com/desertthunder/ytplay/internal/models"

// webmBonus tips equal bitrates toward the webm container.
const webmBonus = 10240

// SelectFormat picks the best original audio format for the policy.
//
// Each candidate scores bitrate*m + bonus, where m is -1 for low quality (or auto on a metered
// network) and +1 otherwise. Ties keep the earliest candidate. Returns false when nothing qualifies.
func SelectFormat(formats []models.Format, policy models.QualityPolicy, metered bool) (models.Format, bool) {
	mult := qualityMultiplier(policy, metered)

	var best models.Format
	var bestScore int
	found := false
	for _, f := range formats {
		if !f.IsAudio || !f.IsOriginalTrack {
			continue
		}

		score := f.Bitrate * mult
		if f.IsWebmAudio() {
			score += webmBonus
		}

		if !found || score > bestScore {
			best, bestScore, found = f, score, true
		}
	}
	return best, found
}

func qualityMultiplier(policy models.QualityPolicy, metered bool) int {
	switch policy {
	case models.QualityLow:
		return -1
	case models.QualityHigh:
		return 1
	default:
		if metered {
			return -1
		}
		return 1
	}
}
