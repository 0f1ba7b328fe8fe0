package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads KEY=VALUE files into the process environment before Load
// consults its environment fallbacks. VIDFLOW_ENV selects ".env.<name>";
// otherwise ".env" is used. Variables already set in the environment win.
// Missing files are not an error. The returned path is the file that was
// applied, or empty when none existed.
func LoadEnv(dir string) (string, error) {
	candidates := []string{".env"}
	if name := strings.TrimSpace(os.Getenv("VIDFLOW_ENV")); name != "" {
		candidates = append([]string{".env." + name}, candidates...)
	}
	for _, candidate := range candidates {
		path := candidate
		if dir != "" {
			path = filepath.Join(dir, candidate)
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("stat env file: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return "", fmt.Errorf("load env file %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}
