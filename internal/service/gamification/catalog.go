package gamification

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/novelmaze/novelmaze/internal/models"
)

// Achievement track keys referenced by code.
const (
	TrackFirstReader    = "FIRST_READER"
	TrackStoryCollector = "STORY_COLLECTOR"
	TrackDailyVisitor   = "DAILY_VISITOR"
	TrackPatron         = "PATRON"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the set of achievement tracks loaded from YAML.
type Catalog struct {
	Achievements []TrackDefinition `yaml:"achievements"`
}

// TrackDefinition describes one achievement track and its tiers.
type TrackDefinition struct {
	Key         string           `yaml:"key"`
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Category    string           `yaml:"category"`
	Icon        string           `yaml:"icon"`
	Condition   string           `yaml:"condition"`
	Tiers       []TierDefinition `yaml:"tiers"`
}

// TierDefinition is one tier of a track. Title falls back to the track title.
type TierDefinition struct {
	Target int64  `yaml:"target"`
	Points int64  `yaml:"points"`
	Title  string `yaml:"title"`
}

// LoadCatalog reads the catalog at path, or the embedded catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read achievement catalog %s: %w", path, err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse achievement catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate checks that keys are unique and tier targets strictly increase.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Achievements))
	for _, track := range c.Achievements {
		if track.Key == "" {
			return fmt.Errorf("achievement track without key")
		}
		if seen[track.Key] {
			return fmt.Errorf("duplicate achievement track %s", track.Key)
		}
		seen[track.Key] = true

		if track.Title == "" {
			return fmt.Errorf("achievement track %s has no title", track.Key)
		}
		if len(track.Tiers) == 0 {
			return fmt.Errorf("achievement track %s has no tiers", track.Key)
		}
		var previous int64
		for i, tier := range track.Tiers {
			if tier.Target <= previous {
				return fmt.Errorf("achievement track %s tier %d: target %d must exceed %d",
					track.Key, i+1, tier.Target, previous)
			}
			if tier.Points < 0 {
				return fmt.Errorf("achievement track %s tier %d: negative points", track.Key, i+1)
			}
			previous = tier.Target
		}
	}
	return nil
}

// Definitions flattens the catalog into one definition per tier.
func (c *Catalog) Definitions() []models.Achievement {
	var defs []models.Achievement
	for _, track := range c.Achievements {
		for i, tier := range track.Tiers {
			title := tier.Title
			if title == "" {
				title = track.Title
			}
			defs = append(defs, models.Achievement{
				TierKey:      track.Key,
				TierLevel:    i + 1,
				MaxTier:      len(track.Tiers),
				Title:        title,
				Description:  track.Description,
				Category:     track.Category,
				Icon:         track.Icon,
				Condition:    track.Condition,
				TargetValue:  tier.Target,
				PointsReward: tier.Points,
			})
		}
	}
	return defs
}

// firstReaderDefinition is seeded on demand when the catalog was never synced.
func firstReaderDefinition() *models.Achievement {
	return &models.Achievement{
		TierKey:      TrackFirstReader,
		TierLevel:    1,
		MaxTier:      1,
		Title:        "First Reader",
		Description:  "Finish your first story.",
		Category:     "reading",
		Icon:         "book-open",
		Condition:    "story_completed",
		TargetValue:  1,
		PointsReward: 10,
	}
}
