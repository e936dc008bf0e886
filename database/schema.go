package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// Schema contains the database schema for the posture service.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id INT AUTO_INCREMENT PRIMARY KEY,
    username VARCHAR(50) NOT NULL,
    email VARCHAR(255) NOT NULL,
    password_hash VARCHAR(256) NOT NULL,
    is_active BOOLEAN DEFAULT TRUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    last_login TIMESTAMP NULL,
    UNIQUE KEY unique_username (username),
    UNIQUE KEY unique_email (email)
);

CREATE TABLE IF NOT EXISTS posture_records (
    id INT AUTO_INCREMENT PRIMARY KEY,
    user_id INT NOT NULL,
    neck_angle DOUBLE NOT NULL,
    shoulder_slope DOUBLE NOT NULL,
    head_forward DOUBLE NOT NULL,
    shoulder_height_diff DOUBLE NOT NULL,
    score DOUBLE NOT NULL,
    cervical_lordosis DOUBLE NOT NULL,
    forward_head_distance DOUBLE NOT NULL,
    head_tilt DOUBLE NOT NULL,
    left_shoulder_height_diff DOUBLE NOT NULL,
    left_scapular_winging DOUBLE NOT NULL,
    right_scapular_winging DOUBLE NOT NULL,
    shoulder_forward_movement DOUBLE NOT NULL,
    head_rotation DOUBLE NOT NULL,
    issues TEXT,
    session_id VARCHAR(100),
    device_info VARCHAR(200),
    is_neck_angle_normal BOOLEAN,
    is_forward_head_normal BOOLEAN,
    is_head_tilt_normal BOOLEAN,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    INDEX idx_user_created (user_id, created_at)
);

CREATE TABLE IF NOT EXISTS password_reset_tokens (
    id INT AUTO_INCREMENT PRIMARY KEY,
    user_id INT NOT NULL,
    token_hash VARCHAR(256) NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    used BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    INDEX idx_token_hash (token_hash)
);
`

// InitializeSchema creates the database tables.
func InitializeSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info("Database schema initialized successfully")
	return nil
}
