package repository

import (
	"gorm.io/gorm"

	"docflow/internal/models"
)

// ClientRepository persists clients (the subjects schedules and runs belong to).
type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(client *models.Client) error {
	return r.db.Create(client).Error
}

func (r *ClientRepository) FindByID(id uint) (*models.Client, error) {
	var client models.Client
	if err := r.db.First(&client, id).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) Update(client *models.Client) error {
	return r.db.Save(client).Error
}

// SchedulingEnabled reads the per-client scheduling flag.
func (r *ClientRepository) SchedulingEnabled(id uint) (bool, error) {
	client, err := r.FindByID(id)
	if err != nil {
		return false, err
	}
	return client.SchedulingEnabled, nil
}
