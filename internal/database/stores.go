package database

import (
	"context"

	"github.com/google/uuid"
)

const listOpenStores = `
SELECT id, name, is_open, integrations_config, created_at
FROM stores
WHERE is_open = true
ORDER BY created_at
`

func (q *Queries) ListOpenStores(ctx context.Context) ([]Store, error) {
	rows, err := q.db.Query(ctx, listOpenStores)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stores []Store
	for rows.Next() {
		var s Store
		if err := rows.Scan(&s.ID, &s.Name, &s.IsOpen, &s.IntegrationsConfig, &s.CreatedAt); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

const getStore = `
SELECT id, name, is_open, integrations_config, created_at
FROM stores
WHERE id = $1
`

func (q *Queries) GetStore(ctx context.Context, id uuid.UUID) (Store, error) {
	var s Store
	err := q.db.QueryRow(ctx, getStore, id).
		Scan(&s.ID, &s.Name, &s.IsOpen, &s.IntegrationsConfig, &s.CreatedAt)
	return s, err
}

const getUserByEmail = `
SELECT id, store_id, email, password_hash, full_name, role, created_at
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserByEmail, email).
		Scan(&u.ID, &u.StoreID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT id, store_id, email, password_hash, full_name, role, created_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserByID, id).
		Scan(&u.ID, &u.StoreID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
	return u, err
}

const createUser = `
INSERT INTO users (store_id, email, password_hash, full_name, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, store_id, email, password_hash, full_name, role, created_at
`

type CreateUserParams struct {
	StoreID      uuid.UUID
	Email        string
	PasswordHash string
	FullName     string
	Role         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, createUser,
		arg.StoreID, arg.Email, arg.PasswordHash, arg.FullName, arg.Role).
		Scan(&u.ID, &u.StoreID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
	return u, err
}
