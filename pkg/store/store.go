// Package store persists runs, brands, prompts, responses, and
// provider keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/brandvis/mentionoor/pkg/config"
)

// ErrNotFound marks a lookup for a record that does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides persistence for the run engine.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Brand / prompt upserts (case-insensitive identity).
	GetOrCreateBrand(ctx context.Context, name string) (*Brand, error)
	GetOrCreatePrompt(ctx context.Context, text string) (*Prompt, error)

	// Run lifecycle.
	CreateRun(
		ctx context.Context,
		brands, prompts []string,
		notes, inputHash string,
	) (*Run, error)
	FindDuplicateRun(ctx context.Context, inputHash string) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, skip, limit int) ([]Run, error)
	UpdateRunStatus(ctx context.Context, id, status string) error

	// Work-unit persistence.
	FindSuccessfulResponse(
		ctx context.Context, runID string, promptID uint, model string,
	) (*Response, error)
	CreateResponse(
		ctx context.Context,
		resp *Response,
		mentions []ResponseBrandMention,
	) error

	// Aggregation.
	Summary(ctx context.Context, runID string) (*RunSummary, error)

	// Provider key storage (values are sealed by the caller).
	UpsertProviderKey(ctx context.Context, provider, sealedKey string) error
	ListProviderKeyNames(ctx context.Context) ([]string, error)
	GetProviderKeys(ctx context.Context) (map[string]string, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&Brand{},
		&Prompt{},
		&Response{},
		&ResponseBrandMention{},
		&ProviderKey{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Brand / prompt upserts ---

func (s *store) GetOrCreateBrand(
	ctx context.Context, name string,
) (*Brand, error) {
	return getOrCreateBrand(s.db.WithContext(ctx), name)
}

func (s *store) GetOrCreatePrompt(
	ctx context.Context, text string,
) (*Prompt, error) {
	return getOrCreatePrompt(s.db.WithContext(ctx), text)
}

// getOrCreateBrand resolves name to its brand row, matching
// case-insensitively and preserving the first-submitted casing.
func getOrCreateBrand(tx *gorm.DB, name string) (*Brand, error) {
	var brand Brand

	err := tx.Where("LOWER(name) = ?", strings.ToLower(name)).
		First(&brand).Error
	if err == nil {
		return &brand, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up brand: %w", err)
	}

	brand = Brand{Name: name}
	if err := tx.Create(&brand).Error; err != nil {
		return nil, fmt.Errorf("creating brand: %w", err)
	}

	return &brand, nil
}

func getOrCreatePrompt(tx *gorm.DB, text string) (*Prompt, error) {
	var prompt Prompt

	err := tx.Where("LOWER(text) = ?", strings.ToLower(text)).
		First(&prompt).Error
	if err == nil {
		return &prompt, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up prompt: %w", err)
	}

	prompt = Prompt{Text: text}
	if err := tx.Create(&prompt).Error; err != nil {
		return nil, fmt.Errorf("creating prompt: %w", err)
	}

	return &prompt, nil
}

// --- Run lifecycle ---

// CreateRun allocates a run, resolves brand and prompt entities, and
// links the associations in one transaction. The returned run has its
// brands and prompts eagerly loaded so it can be handed straight back
// to the caller before orchestration starts.
func (s *store) CreateRun(
	ctx context.Context,
	brands, prompts []string,
	notes, inputHash string,
) (*Run, error) {
	runID := uuid.NewString()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := Run{
			ID:        runID,
			Status:    StatusPending,
			Notes:     notes,
			InputHash: inputHash,
		}

		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("creating run: %w", err)
		}

		for _, name := range dedupeFold(brands) {
			brand, err := getOrCreateBrand(tx, name)
			if err != nil {
				return err
			}

			if err := tx.Model(&run).
				Association("Brands").Append(brand); err != nil {
				return fmt.Errorf("linking brand: %w", err)
			}
		}

		for _, text := range dedupeFold(prompts) {
			prompt, err := getOrCreatePrompt(tx, text)
			if err != nil {
				return err
			}

			if err := tx.Model(&run).
				Association("Prompts").Append(prompt); err != nil {
				return fmt.Errorf("linking prompt: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	var run Run
	if err := s.db.WithContext(ctx).
		Preload("Brands").
		Preload("Prompts").
		First(&run, "id = ?", runID).Error; err != nil {
		return nil, fmt.Errorf("reloading run: %w", err)
	}

	return &run, nil
}

// dedupeFold removes case-insensitive duplicates, keeping the first
// occurrence's casing and order.
func dedupeFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))

	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		out = append(out, v)
	}

	return out
}

// FindDuplicateRun returns the most recent non-failed run with the
// given input hash, or nil when no such run exists. Failed runs are
// excluded so a resubmission can retry them.
func (s *store) FindDuplicateRun(
	ctx context.Context, inputHash string,
) (*Run, error) {
	var run Run

	err := s.db.WithContext(ctx).
		Preload("Brands").
		Preload("Prompts").
		Where("input_hash = ? AND status <> ?", inputHash, StatusFailed).
		Order("created_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("finding duplicate run: %w", err)
	}

	return &run, nil
}

func (s *store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run

	err := s.db.WithContext(ctx).
		Preload("Brands").
		Preload("Prompts").
		Preload("Responses").
		Preload("Responses.Prompt").
		Preload("Responses.Mentions").
		Preload("Responses.Mentions.Brand").
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	return &run, nil
}

func (s *store) ListRuns(
	ctx context.Context, skip, limit int,
) ([]Run, error) {
	var runs []Run

	if err := s.db.WithContext(ctx).
		Preload("Brands").
		Preload("Prompts").
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

func (s *store) UpdateRunStatus(
	ctx context.Context, id, status string,
) error {
	result := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("updating run status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// --- Work-unit persistence ---

// FindSuccessfulResponse returns the error-free response for a
// (run, prompt, model) triple, or nil when the unit has not completed
// successfully yet. This is the idempotency check that lets a run be
// re-driven without duplicating finished work.
func (s *store) FindSuccessfulResponse(
	ctx context.Context, runID string, promptID uint, model string,
) (*Response, error) {
	var resp Response

	err := s.db.WithContext(ctx).
		Where(
			"run_id = ? AND prompt_id = ? AND model = ? AND error IS NULL",
			runID, promptID, model,
		).
		First(&resp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("finding successful response: %w", err)
	}

	return &resp, nil
}

// CreateResponse persists a response and its mention rows in a single
// transaction so a unit's results are all-or-nothing.
func (s *store) CreateResponse(
	ctx context.Context,
	resp *Response,
	mentions []ResponseBrandMention,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(resp).Error; err != nil {
			return fmt.Errorf("creating response: %w", err)
		}

		if len(mentions) == 0 {
			return nil
		}

		for i := range mentions {
			mentions[i].ResponseID = resp.ID
		}

		if err := tx.Create(&mentions).Error; err != nil {
			return fmt.Errorf("creating mentions: %w", err)
		}

		return nil
	})
}

// --- Provider keys ---

func (s *store) UpsertProviderKey(
	ctx context.Context, provider, sealedKey string,
) error {
	key := &ProviderKey{Provider: provider, APIKey: sealedKey}

	result := s.db.WithContext(ctx).
		Where("provider = ?", provider).
		Assign(ProviderKey{APIKey: sealedKey}).
		FirstOrCreate(key)
	if result.Error != nil {
		return fmt.Errorf("upserting provider key: %w", result.Error)
	}

	return nil
}

func (s *store) ListProviderKeyNames(
	ctx context.Context,
) ([]string, error) {
	var names []string

	if err := s.db.WithContext(ctx).
		Model(&ProviderKey{}).
		Order("provider ASC").
		Pluck("provider", &names).Error; err != nil {
		return nil, fmt.Errorf("listing provider key names: %w", err)
	}

	return names, nil
}

// GetProviderKeys returns provider -> sealed key. Opening the sealed
// values is the caller's concern; plaintext never passes through the
// store.
func (s *store) GetProviderKeys(
	ctx context.Context,
) (map[string]string, error) {
	var keys []ProviderKey

	if err := s.db.WithContext(ctx).Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("loading provider keys: %w", err)
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k.Provider] = k.APIKey
	}

	return out, nil
}
