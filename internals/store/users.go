package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrDuplicatePhone = errors.New("phone already registered")

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

const userColumns = `id, name, phone, role, active, created_at`

// CreateUser registers an operator. phone must already be normalized to digits.
func (s *Store) CreateUser(ctx context.Context, name, phone, role string) (*User, error) {
	if role == "" {
		role = "operator"
	}
	if _, err := s.GetUserByPhone(ctx, phone); err == nil {
		return nil, fmt.Errorf("user %s: %w", phone, ErrDuplicatePhone)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (name, phone, role, active, created_at) VALUES (?, ?, ?, 1, ?)`, name, phone, role, now)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Name: name, Phone: phone, Role: role, Active: true, CreatedAt: parseTime(now)}, nil
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone = ?`, phone)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", phone, ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Store) SetUserActive(ctx context.Context, phone string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE phone = ?`, flag, phone)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", phone, ErrNotFound)
	}
	return nil
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var active int
	var createdAt string
	if err := row.Scan(&user.ID, &user.Name, &user.Phone, &user.Role, &active, &createdAt); err != nil {
		return nil, err
	}
	user.Active = active == 1
	user.CreatedAt = parseTime(createdAt)
	return &user, nil
}
