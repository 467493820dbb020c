// Package service holds the business rules of Compopedia.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (rules)    → validates, checks ownership, orchestrates
//	Repository (data)  → reads/writes SQLite
//
// Services depend on the repository interfaces, never on the sqlite package,
// so tests run them against an in-memory database or hand-written fakes.
// Every multi-step write goes through repository.Store.WithTx and uses only
// the transaction-bound store it is handed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/repository"
)

// Validation limits for component submissions.
const (
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MinDescriptionLength = 10
	MaxDescriptionLength = 5000
	MaxTextBlockLength   = 100000
	MaxHeadlineLength    = 200
	MaxLanguageLength    = 50
)

// TextBlockInput is one submitted snippet. Empty BlockType and Language fall
// back to model.DefaultBlockType and model.DefaultLanguage.
type TextBlockInput struct {
	Content   string `json:"content"`
	Headline  string `json:"headline"`
	BlockType string `json:"blockType"`
	Language  string `json:"language"`
}

// ComponentInput is the body of create and update requests. CategoryID wins
// over CategoryName; a name that does not exist yet creates the category.
type ComponentInput struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	CategoryID   string           `json:"categoryId"`
	CategoryName string           `json:"categoryName"`
	TextBlocks   []TextBlockInput `json:"textBlocks"`
	Images       []ImageRef       `json:"images"`
}

// ComponentService creates, updates and deletes components on behalf of
// their owners.
type ComponentService struct {
	store   repository.Store
	uploads *UploadDir
	logger  *slog.Logger
}

// NewComponentService wires the service. uploads may be nil, in which case
// legacy files are never unlinked.
func NewComponentService(store repository.Store, uploads *UploadDir, logger *slog.Logger) *ComponentService {
	return &ComponentService{store: store, uploads: uploads, logger: logger}
}

// Create stores a new component owned by callerID and returns it joined.
func (s *ComponentService) Create(ctx context.Context, callerID string, in ComponentInput) (*model.Component, error) {
	if callerID == "" {
		return nil, apperror.Unauthenticated("login required to create components")
	}
	blocks, err := validateComponent(&in)
	if err != nil {
		return nil, err
	}

	var created *model.Component
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		cat, err := resolveCategory(ctx, tx, in)
		if err != nil {
			return err
		}

		c := &model.Component{
			Title:       in.Title,
			Description: in.Description,
			CategoryID:  cat.ID,
			UserID:      callerID,
		}
		if err := tx.CreateComponent(ctx, c); err != nil {
			return err
		}
		if err := tx.ReplaceTextBlocks(ctx, c.ID, blocks); err != nil {
			return err
		}

		ids, err := resolveImages(ctx, tx, callerID, c.ID, in.Images)
		if err != nil {
			return err
		}
		if err := tx.SetComponentImages(ctx, c.ID, ids); err != nil {
			return err
		}

		created, err = tx.GetComponent(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, wrapStoreError("creating component", err)
	}

	s.logger.Info("component created",
		slog.String("componentID", created.ID),
		slog.String("userID", callerID),
		slog.Int("images", len(created.Images)),
	)
	return created, nil
}

// Update replaces title, description, category, text blocks and the image
// set of a component owned by callerID. Images dropped from the set are
// detached, not deleted.
func (s *ComponentService) Update(ctx context.Context, callerID, id string, in ComponentInput) (*model.Component, error) {
	if callerID == "" {
		return nil, apperror.Unauthenticated("login required to edit components")
	}
	blocks, err := validateComponent(&in)
	if err != nil {
		return nil, err
	}

	var updated *model.Component
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		c, err := tx.GetOwnedComponent(ctx, id, callerID)
		if err != nil {
			return err
		}

		cat, err := resolveCategory(ctx, tx, in)
		if err != nil {
			return err
		}

		c.Title = in.Title
		c.Description = in.Description
		c.CategoryID = cat.ID
		if err := tx.UpdateComponent(ctx, c); err != nil {
			return err
		}
		if err := tx.ReplaceTextBlocks(ctx, c.ID, blocks); err != nil {
			return err
		}

		ids, err := resolveImages(ctx, tx, callerID, c.ID, in.Images)
		if err != nil {
			return err
		}
		if err := tx.SetComponentImages(ctx, c.ID, ids); err != nil {
			return err
		}

		updated, err = tx.GetComponent(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, wrapStoreError("updating component "+id, err)
	}

	s.logger.Info("component updated", slog.String("componentID", id), slog.String("userID", callerID))
	return updated, nil
}

// Delete removes a component owned by callerID together with its text
// blocks. Current images are detached and left for PruneOrphans; legacy rows
// stored under the uploads directory are deleted, and their files are
// unlinked after commit on a best-effort basis.
func (s *ComponentService) Delete(ctx context.Context, callerID, id string) error {
	if callerID == "" {
		return apperror.Unauthenticated("login required to delete components")
	}

	var legacyURLs []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		c, err := tx.GetOwnedComponent(ctx, id, callerID)
		if err != nil {
			return err
		}

		var legacyIDs []string
		for _, img := range c.Images {
			if IsUploadsURL(img.LegacyURL) {
				legacyIDs = append(legacyIDs, img.ID)
				legacyURLs = append(legacyURLs, img.LegacyURL)
			}
		}

		if err := tx.SetComponentImages(ctx, c.ID, nil); err != nil {
			return err
		}
		if err := tx.DeleteImages(ctx, legacyIDs); err != nil {
			return err
		}
		return tx.DeleteComponent(ctx, c.ID)
	})
	if err != nil {
		return wrapStoreError("deleting component "+id, err)
	}

	s.logger.Info("component deleted", slog.String("componentID", id), slog.String("userID", callerID))

	if s.uploads != nil {
		for _, u := range legacyURLs {
			if err := s.uploads.Remove(u); err != nil {
				s.logger.Warn("failed to remove legacy image file",
					slog.String("url", u),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}

// wrapStoreError passes AppErrors through untouched and wraps anything else
// as an internal failure.
func wrapStoreError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("service/component: %s: %w", op, err)
}

func resolveCategory(ctx context.Context, tx repository.Store, in ComponentInput) (*model.Category, error) {
	if in.CategoryID != "" {
		cat, err := tx.GetCategoryByID(ctx, in.CategoryID)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("categoryId", "category not found")
		}
		return cat, err
	}
	return tx.FindOrCreateCategory(ctx, in.CategoryName)
}

// resolveImages turns references into image ids, in request order without
// duplicates. An image can be attached only while it is unattached or
// already attached to componentID, and only by its uploader. Every failure
// yields the same "image not found" error.
func resolveImages(ctx context.Context, tx repository.Store, callerID, componentID string, refs []ImageRef) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		var img *model.Image
		var err error
		switch ref.Kind {
		case RefByID:
			img, err = tx.GetImageMeta(ctx, ref.Value)
		case RefByLegacyURL:
			img, err = tx.FindImageByLegacyURL(ctx, ref.Value)
		default:
			return nil, errBadImageRef
		}
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, imageNotFound()
			}
			return nil, err
		}

		if img.ComponentID != nil && *img.ComponentID != componentID {
			return nil, imageNotFound()
		}
		if img.UploaderID != nil && *img.UploaderID != callerID {
			return nil, imageNotFound()
		}

		if !slices.Contains(ids, img.ID) {
			ids = append(ids, img.ID)
		}
	}
	return ids, nil
}

func imageNotFound() error {
	return apperror.ValidationFailed("images", "image not found")
}

// validateComponent trims the input in place and returns the normalized
// text blocks.
func validateComponent(in *ComponentInput) ([]model.TextBlock, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	in.CategoryName = strings.TrimSpace(in.CategoryName)

	if n := utf8.RuneCountInString(in.Title); n < MinTitleLength || n > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be between %d and %d characters", MinTitleLength, MaxTitleLength))
	}
	if n := utf8.RuneCountInString(in.Description); n < MinDescriptionLength || n > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be between %d and %d characters", MinDescriptionLength, MaxDescriptionLength))
	}
	if in.CategoryID == "" && in.CategoryName == "" {
		return nil, apperror.ValidationFailed("categoryId", "a category id or category name is required")
	}
	if utf8.RuneCountInString(in.CategoryName) > MaxTitleLength {
		return nil, apperror.ValidationFailed("categoryName",
			fmt.Sprintf("category name must be at most %d characters", MaxTitleLength))
	}

	blocks := make([]model.TextBlock, 0, len(in.TextBlocks))
	for i, b := range in.TextBlocks {
		field := fmt.Sprintf("textBlocks[%d]", i)

		if strings.TrimSpace(b.Content) == "" {
			return nil, apperror.ValidationFailed(field, "text block content must not be empty")
		}
		if utf8.RuneCountInString(b.Content) > MaxTextBlockLength {
			return nil, apperror.ValidationFailed(field,
				fmt.Sprintf("text block content must be at most %d characters", MaxTextBlockLength))
		}

		blockType := strings.TrimSpace(b.BlockType)
		if blockType == "" {
			blockType = model.DefaultBlockType
		}
		if blockType != model.BlockTypeCode && blockType != model.BlockTypeTerminal {
			return nil, apperror.ValidationFailed(field, "block type must be code or terminal")
		}

		language := strings.TrimSpace(b.Language)
		if language == "" {
			language = model.DefaultLanguage
		}
		headline := strings.TrimSpace(b.Headline)
		if utf8.RuneCountInString(headline) > MaxHeadlineLength || utf8.RuneCountInString(language) > MaxLanguageLength {
			return nil, apperror.ValidationFailed(field, "headline or language is too long")
		}

		blocks = append(blocks, model.TextBlock{
			Content:   b.Content,
			Headline:  headline,
			BlockType: blockType,
			Language:  language,
		})
	}

	return blocks, nil
}
