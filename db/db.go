package db

import (
	"database/sql"
	"edgeblog/models"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoRows          = errors.New("no rows found")
	ErrInvalidPassword = errors.New("invalid password")
)

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS follows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			follower_id INTEGER NOT NULL REFERENCES users(id),
			followee_id INTEGER NOT NULL REFERENCES users(id),
			UNIQUE(follower_id, followee_id)
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			likes INTEGER NOT NULL DEFAULT 0,
			dislikes INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS contact_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_follower ON follows(follower_id)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows(followee_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// CreateUser stores a new user with a bcrypt-hashed password and
// returns its id.
func (db *DB) CreateUser(username, email, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	res, err := db.conn.Exec(
		`INSERT INTO users (username, email, password) VALUES (?, ?, ?)`,
		username, email, string(hash),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Authenticate checks the credentials and returns the matching user.
// Returns ErrNoRows for an unknown email and ErrInvalidPassword for a
// bad password.
func (db *DB) Authenticate(email, password string) (*models.User, error) {
	var user models.User
	err := db.conn.QueryRow(
		`SELECT id, username, email, password FROM users WHERE email = ?`, email,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Password)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidPassword
	}
	return &user, nil
}

func (db *DB) GetUser(id int64) (*models.User, error) {
	var user models.User
	err := db.conn.QueryRow(
		`SELECT id, username, email, password FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Password)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Follow records a follow edge. Following the same user twice is a
// no-op, matching the idempotent nature of the action.
func (db *DB) Follow(followerID, followeeID int64) error {
	_, err := db.conn.Exec(
		`INSERT OR IGNORE INTO follows (follower_id, followee_id) VALUES (?, ?)`,
		followerID, followeeID,
	)
	return err
}

func (db *DB) Unfollow(followerID, followeeID int64) error {
	_, err := db.conn.Exec(
		`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	)
	return err
}

func (db *DB) IsFollowing(followerID, followeeID int64) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) CreatePost(title string) (int64, error) {
	res, err := db.conn.Exec(`INSERT INTO posts (title) VALUES (?)`, title)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LikePost increments the like counter and returns the new value.
func (db *DB) LikePost(id int64) (int64, error) {
	return db.bumpPostCounter(id, "likes")
}

// DislikePost increments the dislike counter and returns the new value.
func (db *DB) DislikePost(id int64) (int64, error) {
	return db.bumpPostCounter(id, "dislikes")
}

func (db *DB) bumpPostCounter(id int64, column string) (int64, error) {
	// column comes from the two callers above, never from input.
	res, err := db.conn.Exec(`UPDATE posts SET `+column+` = `+column+` + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrNoRows
	}

	var count int64
	if err := db.conn.QueryRow(`SELECT `+column+` FROM posts WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (db *DB) SaveContactMessage(name, email, message string) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO contact_messages (name, email, message, created_at) VALUES (?, ?, ?, ?)`,
		name, email, message, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
