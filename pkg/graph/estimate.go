package graph

// Estimator predicts wall-clock build minutes for a package. It is a
// prioritization aid only; wave assignment never depends on it.
type Estimator func(atom, tier string) int

// tierDefaultMinutes maps tier labels to a default build-time estimate.
var tierDefaultMinutes = map[string]int{
	"tier1-core-infrastructure": 4,
	"tier2-security-critical":   6,
	"tier3-allocation-heavy":    8,
	"tier4-string-heavy":        5,
	"tier5-threading-heavy":     7,
}

// heavyOverrideMinutes lists packages whose builds dwarf their tier default.
var heavyOverrideMinutes = map[string]int{
	"sys-devel/gcc":         18,
	"sys-libs/glibc":        12,
	"app-emulation/qemu":    14,
	"app-emulation/wine":    16,
	"app-containers/docker": 10,
	"dev-db/postgresql":     11,
	"dev-db/mariadb":        12,
	"media-video/ffmpeg":    10,
	"media-video/vlc":       9,
}

// DefaultEstimator resolves estimates from the heavy-package override table,
// then the tier default, then a flat fallback.
func DefaultEstimator(atom, tier string) int {
	if minutes, ok := heavyOverrideMinutes[atom]; ok {
		return minutes
	}
	if minutes, ok := tierDefaultMinutes[tier]; ok {
		return minutes
	}
	return 6
}
