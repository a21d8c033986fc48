package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"keyshop-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetGatewayByID retrieves a payment gateway by ID
func (s *Store) GetGatewayByID(ctx context.Context, id int64) (*models.Gateway, error) {
	var gateway models.Gateway
	err := s.db.GetContext(ctx, &gateway, "SELECT * FROM gateways WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrGatewayNotFound
	}
	if err != nil {
		return nil, err
	}
	return &gateway, nil
}

// ListEnabledGateways retrieves all enabled payment gateways
func (s *Store) ListEnabledGateways(ctx context.Context) ([]models.Gateway, error) {
	var gateways []models.Gateway
	err := s.db.SelectContext(ctx, &gateways, "SELECT * FROM gateways WHERE enabled ORDER BY id")
	return gateways, err
}
