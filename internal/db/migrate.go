package db

import (
	"fmt"

	"github.com/kvistad/parley/internal/config"
	"github.com/kvistad/parley/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.ChatMessage{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedAgent ensures the well-known support agent account exists. Existing
// accounts are left untouched so a rotated password in config does not
// clobber a live deployment.
func SeedAgent(db *gorm.DB, cfg config.AgentConfig) (*models.User, error) {
	var agent models.User
	err := db.Where("role = ?", models.RoleAgent).First(&agent).Error
	if err == nil {
		return &agent, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("db: look up agent: %w", err)
	}

	if cfg.Password == "" {
		return nil, fmt.Errorf("db: agent.password is required to seed the agent account")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("db: hash agent password: %w", err)
	}

	agent = models.User{
		Username:     cfg.Username,
		DisplayName:  cfg.DisplayName,
		PasswordHash: string(hash),
		Role:         models.RoleAgent,
	}
	if err := db.Create(&agent).Error; err != nil {
		return nil, fmt.Errorf("db: seed agent: %w", err)
	}
	return &agent, nil
}

// CreateCustomer registers a customer account with a bcrypt-hashed password.
func CreateCustomer(db *gorm.DB, username, displayName, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("db: username and password are required")
	}
	if displayName == "" {
		displayName = username
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("db: hash password: %w", err)
	}
	user := models.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         models.RoleCustomer,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("db: create customer %q: %w", username, err)
	}
	return &user, nil
}
