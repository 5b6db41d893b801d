// Package seed loads demo users, a novel with free and paid episodes, and
// a starting coin grant into an empty database.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/gosimple/slug"

	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// Wallet credits coins to a user.
type Wallet interface {
	CreditCoins(ctx context.Context, userID string, amount int64, txType, reason string) (int64, error)
}

// Options controls the demo content.
type Options struct {
	NovelTitle   string
	FreeEpisodes int
	PaidEpisodes int
	EpisodePrice int64
	StartingCoin int64
}

// DefaultOptions returns the stock demo content.
func DefaultOptions() Options {
	return Options{
		NovelTitle:   "Tides of the Glass Harbor",
		FreeEpisodes: 2,
		PaidEpisodes: 3,
		EpisodePrice: 30,
		StartingCoin: 100,
	}
}

// Result lists the seeded entities.
type Result struct {
	Author   *models.User
	Reader   *models.User
	Admin    *models.User
	Novel    *models.Novel
	Episodes []models.Episode
	Created  bool
}

// Seeder writes the demo dataset.
type Seeder struct {
	db     *repository.DB
	users  *repository.UserRepository
	novels *repository.NovelRepository
	wallet Wallet
	log    *logger.Logger
	now    func() time.Time
}

// NewSeeder creates a new seeder.
func NewSeeder(db *repository.DB, wallet Wallet, log *logger.Logger) *Seeder {
	return &Seeder{
		db:     db,
		users:  repository.NewUserRepository(db),
		novels: repository.NewNovelRepository(db),
		wallet: wallet,
		log:    log.Component("seed"),
		now:    time.Now,
	}
}

// Run seeds the dataset. Running it twice leaves the database unchanged: the
// novel is keyed by its slug and coins are only granted when it is created.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{}

	var err error
	if res.Author, err = s.ensureUser(ctx, "demo-author", "Demo Author", models.RoleAuthor); err != nil {
		return nil, err
	}
	if res.Reader, err = s.ensureUser(ctx, "demo-reader", "Demo Reader", models.RoleReader); err != nil {
		return nil, err
	}
	if res.Admin, err = s.ensureUser(ctx, "demo-admin", "Demo Admin", models.RoleAdmin); err != nil {
		return nil, err
	}

	novelSlug := slug.Make(opts.NovelTitle)
	existing, err := s.novels.GetNovelBySlug(ctx, novelSlug)
	switch {
	case err == nil:
		res.Novel = existing
	case repository.IsNotFound(err):
		if err := s.createNovel(ctx, res, novelSlug, opts); err != nil {
			return nil, err
		}
		res.Created = true
	default:
		return nil, err
	}

	if res.Episodes, err = s.novels.ListEpisodes(ctx, res.Novel.ID); err != nil {
		return nil, err
	}

	if res.Created && opts.StartingCoin > 0 {
		if _, err := s.wallet.CreditCoins(ctx, res.Reader.ID, opts.StartingCoin, models.CoinTxGrant, "welcome bonus"); err != nil {
			return nil, fmt.Errorf("failed to grant starting coins: %w", err)
		}
	}

	s.log.Info().
		Str("novel", res.Novel.Slug).
		Int("episodes", len(res.Episodes)).
		Bool("created", res.Created).
		Msg("Demo data seeded")
	return res, nil
}

func (s *Seeder) ensureUser(ctx context.Context, username, displayName, role string) (*models.User, error) {
	user := &models.User{
		Username:    username,
		Email:       username + "@novelmaze.local",
		DisplayName: displayName,
		Roles:       []string{role},
	}
	if err := s.users.CreateOrUpdate(ctx, user); err != nil {
		return nil, err
	}
	// The upsert keeps the stored id on conflict, so read it back.
	return s.users.GetByUsername(ctx, username)
}

func (s *Seeder) createNovel(ctx context.Context, res *Result, novelSlug string, opts Options) error {
	now := s.now()
	return s.db.Transaction(ctx, func(tx *repository.DB) error {
		novels := s.novels.WithTx(tx)

		novel := &models.Novel{
			Title:       opts.NovelTitle,
			Slug:        novelSlug,
			Synopsis:    "A harbor pilot learns that every choice moves the tide.",
			AuthorID:    res.Author.ID,
			Status:      models.StatusPublished,
			PublishedAt: &now,
		}
		if err := novels.CreateNovel(ctx, novel); err != nil {
			return err
		}

		total := opts.FreeEpisodes + opts.PaidEpisodes
		for order := 1; order <= total; order++ {
			episode := &models.Episode{
				NovelID:      novel.ID,
				Title:        fmt.Sprintf("Chapter %d", order),
				EpisodeOrder: order,
				Status:       models.StatusPublished,
				AccessType:   models.AccessTypeFree,
				ReadMinutes:  12,
				PublishedAt:  &now,
			}
			if order > opts.FreeEpisodes {
				episode.AccessType = models.AccessTypePaidUnlock
				episode.PriceCoins = opts.EpisodePrice
			}
			if err := novels.CreateEpisode(ctx, episode); err != nil {
				return err
			}
		}

		res.Novel = novel
		return nil
	})
}
