package repository

import (
	"context"
	"fmt"

	"github.com/nukevideo/nukevideo/internal/models"
	"gorm.io/gorm"
)

// templateRepo implements TemplateRepository using GORM.
type templateRepo struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *gorm.DB) *templateRepo {
	return &templateRepo{db: db}
}

// Create creates a new template.
func (r *templateRepo) Create(ctx context.Context, template *models.Template) error {
	if err := r.db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("creating template: %w", err)
	}
	return nil
}

// GetByID retrieves a template by ID.
func (r *templateRepo) GetByID(ctx context.Context, id models.ULID) (*models.Template, error) {
	var template models.Template
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&template).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting template by ID: %w", err)
	}
	return &template, nil
}

// GetByIDForUser resolves a template only when owned by the given user.
func (r *templateRepo) GetByIDForUser(ctx context.Context, id models.ULID, userID string) (*models.Template, error) {
	var template models.Template
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&template).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting template for user: %w", err)
	}
	return &template, nil
}

// GetByUser retrieves all templates owned by a user.
func (r *templateRepo) GetByUser(ctx context.Context, userID string) ([]*models.Template, error) {
	var templates []*models.Template
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("getting templates by user: %w", err)
	}
	return templates, nil
}

// Update updates an existing template.
func (r *templateRepo) Update(ctx context.Context, template *models.Template) error {
	if err := r.db.WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("updating template: %w", err)
	}
	return nil
}

// Delete deletes a template by ID.
func (r *templateRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Template{}).Error; err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	return nil
}

// Ensure templateRepo implements TemplateRepository at compile time.
var _ TemplateRepository = (*templateRepo)(nil)
