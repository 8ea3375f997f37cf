package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/metalagman/taskflow/internal/config"
	"github.com/spf13/viper"
)

func loadConfig(path string) (config.Config, error) {
	return config.Load(viper.New(), path)
}

// loadDotEnv exports variables from dir/.env without overriding the
// environment. A missing file is not an error.
func loadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}
