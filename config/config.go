package config

import (
	"fmt"

	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Structs

// Config holds all information parsed from
// supplied config file.
type Config struct {
	IMAP    IMAP
	LMTP    LMTP
	Maildir Maildir
	Auth    Auth
}

// IMAP is the IMAP server related part
// of the TOML config file.
type IMAP struct {
	Greeting           string
	HierarchySeparator string
	ListenAddr         string
	PrometheusAddr     string
	CertLoc            string
	KeyLoc             string
	MaxLineLength      int
}

// LMTP is the delivery server related part
// of the TOML config file.
type LMTP struct {
	Hostname   string
	ListenAddr string
}

// Maildir configures where the mailbox store
// keeps all user data.
type Maildir struct {
	RootDir string
}

// Auth selects and configures the authentication
// adapter used on IMAP LOGIN.
type Auth struct {
	Adapter      string
	AuthFile     *AuthFile
	AuthPostgres *AuthPostgres
}

// AuthFile provides information on authenticating
// users taken from a designated authorization text file.
type AuthFile struct {
	File      string
	Separator string
}

// AuthPostgres defines parameters for connecting
// to a Postgres database for authenticating users.
type AuthPostgres struct {
	IP       string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
}

// Functions

// LoadConfig takes in the path to the main config file of
// petrel in TOML syntax and places the values from the file
// in the corresponding struct.
func LoadConfig(configFile string) (*Config, error) {

	conf := new(Config)

	// Parse values from TOML file into struct.
	if _, err := toml.DecodeFile(configFile, conf); err != nil {
		return nil, fmt.Errorf("failed to read in TOML config file at '%s' with: %v", configFile, err)
	}

	// Resolve relative paths against the directory the
	// config file resides in.
	confDir, err := filepath.Abs(filepath.Dir(configFile))
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path of config directory: %v", err)
	}

	if (conf.IMAP.CertLoc != "") && !filepath.IsAbs(conf.IMAP.CertLoc) {
		conf.IMAP.CertLoc = filepath.Join(confDir, conf.IMAP.CertLoc)
	}

	if (conf.IMAP.KeyLoc != "") && !filepath.IsAbs(conf.IMAP.KeyLoc) {
		conf.IMAP.KeyLoc = filepath.Join(confDir, conf.IMAP.KeyLoc)
	}

	if !filepath.IsAbs(conf.Maildir.RootDir) {
		conf.Maildir.RootDir = filepath.Join(confDir, conf.Maildir.RootDir)
	}

	if (conf.Auth.Adapter == "AuthFile") && (conf.Auth.AuthFile != nil) {

		if !filepath.IsAbs(conf.Auth.AuthFile.File) {
			conf.Auth.AuthFile.File = filepath.Join(confDir, conf.Auth.AuthFile.File)
		}
	}

	// Apply defaults for optional values.
	if conf.IMAP.HierarchySeparator == "" {
		conf.IMAP.HierarchySeparator = "."
	}

	if conf.IMAP.MaxLineLength == 0 {
		conf.IMAP.MaxLineLength = 8192
	}

	return conf, nil
}
