package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadDotEnv exports the keys of .env-style files into the process
// environment. Variables already set keep precedence, and earlier files win
// over later ones.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if err := loadDotEnvFile(trimmed); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func loadDotEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	reader.SetConfigType("env")
	if err := reader.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	// viper lowercases keys; environment keys are conventionally upper case.
	for _, key := range reader.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		_ = os.Setenv(name, reader.GetString(key))
	}
	return nil
}
