package auth

import (
	"fmt"

	"crypto/sha512"
	"encoding/base64"

	"github.com/jinzhu/gorm"

	// We need fitting PostgreSQL drivers for gorm.
	_ "github.com/jinzhu/gorm/dialects/postgres"
)

// Structs

// PostgresAuthenticator stores connection information to the
// PostgreSQL users table configured in the system.
type PostgresAuthenticator struct {
	IP         string
	Port       string
	Database   string
	User       string
	Connection *gorm.DB
}

// dbUser mirrors one row of the users table.
type dbUser struct {
	ID       int
	Username string
	Password string
}

// Functions

// NewPostgresAuthenticator handles the initialization of the
// database connection and returns all information nicely
// packaged in above struct.
func NewPostgresAuthenticator(ip string, port string, db string, user string, pass string, sslmode string) (*PostgresAuthenticator, error) {

	var conn *gorm.DB
	var err error

	// Either attempt login with or without password to database.
	if pass != "" {
		conn, err = gorm.Open("postgres", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, ip, port, db, sslmode))
	} else {
		conn, err = gorm.Open("postgres", fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", user, ip, port, db, sslmode))
	}
	if err != nil {
		return nil, fmt.Errorf("[auth.NewPostgresAuthenticator] Could not connect to database: %v", err)
	}

	// Try to reach database.
	if err := conn.DB().Ping(); err != nil {
		return nil, fmt.Errorf("[auth.NewPostgresAuthenticator] Specified database not reachable after connection: %v", err)
	}

	return &PostgresAuthenticator{
		IP:         ip,
		Port:       port,
		Database:   db,
		User:       user,
		Connection: conn,
	}, nil
}

// AuthenticatePlain performs the actual authentication
// process by taking supplied credentials and attempting to
// find a matching entry in the users table. Passwords are
// stored as base64-encoded SHA512 digests with the scheme
// prefix '{SHA512}'.
func (p *PostgresAuthenticator) AuthenticatePlain(username string, password string, clientAddr string) error {

	// Create new SHA512 hash and input supplied password.
	shaHash := sha512.New()

	if _, err := shaHash.Write([]byte(password)); err != nil {
		return fmt.Errorf("failed to write password to hash: %v", err)
	}

	// Encode the hashed text with base64.
	encHashedPassword := base64.StdEncoding.EncodeToString(shaHash.Sum(nil))

	var user dbUser

	// Query database for user matching all criteria.
	result := p.Connection.Table("users").
		Where("username = ? AND password = ?", username, fmt.Sprintf("{SHA512}%s", encHashedPassword)).
		First(&user)

	if result.RecordNotFound() {
		return fmt.Errorf("username not found in users table or password wrong")
	}

	if result.Error != nil {
		return fmt.Errorf("error while trying to locate user: %v", result.Error)
	}

	return nil
}
