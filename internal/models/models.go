package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	GetID() string      // GetID returns the unique identifier for this model
	SetID(id string)    // SetID assigns the identifier generated by a repository
	Touched() time.Time // Touched returns when this model was last updated
	Validate() error    // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// PlatformType identifies a social platform an account is connected to.
type PlatformType string

const (
	TikTok    PlatformType = "TIKTOK"
	YouTube   PlatformType = "YOUTUBE"
	Instagram PlatformType = "INSTAGRAM"
	Facebook  PlatformType = "FACEBOOK"
	X         PlatformType = "X"
)

// Platforms lists every supported platform.
var Platforms = []PlatformType{TikTok, YouTube, Instagram, Facebook, X}

// ParsePlatform accepts a platform name in any case, e.g. "tiktok" or "YOUTUBE".
func ParsePlatform(s string) (PlatformType, error) {
	p := PlatformType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// UsesPKCE reports whether the platform's authorization code flow requires a code verifier.
func (p PlatformType) UsesPKCE() bool {
	return p == TikTok || p == X
}

// Slug is the lowercase form used in URLs.
func (p PlatformType) Slug() string {
	return strings.ToLower(string(p))
}

// DisplayName is the human readable platform name.
func (p PlatformType) DisplayName() string {
	switch p {
	case TikTok:
		return "TikTok"
	case YouTube:
		return "YouTube"
	case Instagram:
		return "Instagram"
	case Facebook:
		return "Facebook"
	case X:
		return "X"
	default:
		return string(p)
	}
}

// DefaultAccountName is used when profile enrichment fails or is unavailable.
func (p PlatformType) DefaultAccountName() string {
	switch p {
	case TikTok:
		return "TikTok User"
	case YouTube:
		return "YouTube Channel"
	default:
		return p.DisplayName() + " Account"
	}
}
