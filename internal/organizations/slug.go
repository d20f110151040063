package organizations

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meyoo/platform/internal/database/models"
	"gorm.io/gorm"
)

const (
	slugMaxLen   = 40
	slugFallback = "org"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeSlug turns free text into a URL-safe slug: lower-cased, runs of
// anything outside [a-z0-9] collapsed to single hyphens, hyphens trimmed
// from the ends, truncated to 40 characters. Empty results fall back to
// "org".
func NormalizeSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > slugMaxLen {
		slug = strings.Trim(slug[:slugMaxLen], "-")
	}
	if slug == "" {
		return slugFallback
	}
	return slug
}

// GenerateSlug derives a slug from name that no existing organization holds.
// excludeOrgID exempts one organization from the probe so renames keep their
// own slug. Candidates go base, base-1, base-2, ... up to maxAttempts; after
// that a base36 timestamp suffix guarantees termination. Two concurrent
// callers can still probe the same candidate before either commits, so the
// slug column's unique index stays the final arbiter.
func GenerateSlug(ctx context.Context, tx *gorm.DB, name string, excludeOrgID uuid.UUID, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	base := NormalizeSlug(name)

	candidate := base
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		taken, err := slugTaken(ctx, tx, candidate, excludeOrgID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(attempt)
	}

	return base + "-" + strconv.FormatInt(time.Now().UnixMilli(), 36), nil
}

func slugTaken(ctx context.Context, tx *gorm.DB, slug string, excludeOrgID uuid.UUID) (bool, error) {
	var existing models.Organization
	err := tx.WithContext(ctx).Select("id").Where("slug = ?", slug).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return existing.ID != excludeOrgID, nil
}
