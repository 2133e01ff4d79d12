package dotenv

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	DevEnv  = "dev"
	TestEnv = "test"
	ProdEnv = "prod"

	EnvKey = "COMMUNITY_ENV"
)

// LoadDotEnvs loads the .env files of the working directory following the
// convention: https://github.com/bkeepers/dotenv#what-other-env-files-can-i-use
// It only need to be called once in main function, other code reads env
// through os.Getenv during runtime.
func LoadDotEnvs() error {
	return LoadDotEnvsFrom(".")
}

// LoadDotEnvsFrom loads the .env files found in dir. Files loaded first win,
// variables already set in the process are never overwritten. Missing files
// are skipped.
func LoadDotEnvsFrom(dir string) error {
	for _, name := range Files(Env()) {
		err := godotenv.Load(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Files returns the .env file names of env by priority:
// .env.[env].local usually contains credentials, .env.local is the machine
// wide override, .env.[env] holds connection info and .env the shared values.
func Files(env string) []string {
	return []string{".env." + env + ".local", ".env.local", ".env." + env, ".env"}
}

// Env is the runtime environment, dev unless COMMUNITY_ENV says otherwise.
func Env() string {
	if env := os.Getenv(EnvKey); env != "" {
		return env
	}
	return DevEnv
}

// IsProdEnv returns true when the binary runs with COMMUNITY_ENV=prod.
func IsProdEnv() bool {
	return Env() == ProdEnv
}
