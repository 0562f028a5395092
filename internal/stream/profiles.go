package stream

import (
	"fmt"
	"sort"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

var (
	// PrimaryProfile is the music web client, tried before any fallback.
	PrimaryProfile = models.ClientProfile{
		Name:                "WEB_REMIX",
		Version:             "1.20250310.01.00",
		SupportsOriginToken: true,
	}

	// CreatorProfile lifts age and login gates for signed-in sessions.
	CreatorProfile = models.ClientProfile{
		Name:                "WEB_CREATOR",
		Version:             "1.20250312.03.01",
		RequiresAuth:        true,
		SupportsOriginToken: true,
	}

	// DefaultFallbackProfiles is the fallback order used when none is configured.
	// The first entry is the least capable; the last is accepted without validation.
	DefaultFallbackProfiles = []models.ClientProfile{
		{Name: "ANDROID_VR", Version: "1.61.48", UserAgent: "com.google.android.apps.youtube.vr.oculus/1.61.48 (Linux; U; Android 12L) gzip", Priority: 0},
		{Name: "TVHTML5_SIMPLY_EMBEDDED_PLAYER", Version: "2.0", RequiresAuth: true, Priority: 1},
		{Name: "IOS", Version: "20.10.4", UserAgent: "com.google.ios.youtube/20.10.4 (iPhone16,2; U; CPU iOS 18_3_2 like Mac OS X;)", Priority: 2},
		{Name: "WEB", Version: "2.20250312.04.00", SupportsOriginToken: true, Priority: 3},
	}
)

// Registry is the immutable set of client profiles for one process.
type Registry struct {
	primary   models.ClientProfile
	creator   models.ClientProfile
	fallbacks []models.ClientProfile
}

// NewRegistry sorts fallbacks by priority, keeping the given order for equal priorities.
func NewRegistry(primary, creator models.ClientProfile, fallbacks []models.ClientProfile) (*Registry, error) {
	if len(fallbacks) == 0 {
		return nil, fmt.Errorf("%w: at least one fallback profile is required", shared.ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(fallbacks))
	sorted := make([]models.ClientProfile, len(fallbacks))
	copy(sorted, fallbacks)
	for _, p := range sorted {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: fallback profile without a name", shared.ErrInvalidConfig)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate fallback profile %s", shared.ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	return &Registry{primary: primary, creator: creator, fallbacks: sorted}, nil
}

// DefaultRegistry returns the built-in profiles.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(PrimaryProfile, CreatorProfile, DefaultFallbackProfiles)
	if err != nil {
		panic(err)
	}
	return r
}

// RegistryFromConfig uses the configured fallbacks, or the defaults when none are set.
func RegistryFromConfig(cfg shared.ResolverConfig) (*Registry, error) {
	if len(cfg.FallbackProfiles) == 0 {
		return DefaultRegistry(), nil
	}
	return NewRegistry(PrimaryProfile, CreatorProfile, cfg.FallbackProfiles)
}

func (r *Registry) Primary() models.ClientProfile { return r.primary }
func (r *Registry) Creator() models.ClientProfile { return r.creator }

// Fallbacks returns a copy of the fallback list in scan order.
func (r *Registry) Fallbacks() []models.ClientProfile {
	out := make([]models.ClientProfile, len(r.fallbacks))
	copy(out, r.fallbacks)
	return out
}

// Len is the number of fallback profiles.
func (r *Registry) Len() int { return len(r.fallbacks) }

// At returns the fallback at index i.
func (r *Registry) At(i int) models.ClientProfile { return r.fallbacks[i] }
