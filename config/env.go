package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Functions

// LoadEnv looks for an .env file next to the binary and
// reads in all defined values, then fills the secrets of
// the supplied config from the environment. This enables
// host adaptions without needing to maintain secrets in
// the main config file.
func LoadEnv(conf *Config) {

	// A missing .env file is fine, plain environment
	// variables still apply.
	_ = godotenv.Load(".env")

	if conf.Auth.AuthPostgres != nil {

		if password := os.Getenv("PETREL_DB_PASSWORD"); password != "" {
			conf.Auth.AuthPostgres.Password = password
		}
	}
}
