package database

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
)

// Connect opens and verifies a Postgres handle.
func Connect(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

// ResolveURL picks the connection string the process runs on, in
// precedence order: the configured value, the DATABASE_URL environment
// variable, then the nearest .env file up the directory tree. The job
// queue reuses the resolved URL for its own pgx pool.
func ResolveURL(configured string) (string, error) {
	if url := strings.TrimSpace(configured); url != "" {
		return url, nil
	}
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		return url, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	envPath, err := findEnvFile(wd)
	if err != nil {
		return "", errors.New("database url not configured: set database.url, DATABASE_URL, or a .env file")
	}

	url, err := readEnvValue(envPath, "DATABASE_URL")
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("DATABASE_URL not set in %s", envPath)
	}
	return url, nil
}

func findEnvFile(start string) (string, error) {
	for dir := start; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf(".env not found starting from %s", start)
		}
	}
}

func readEnvValue(path, key string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(k) != key {
			continue
		}
		return strings.Trim(strings.TrimSpace(v), `"'`), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return "", nil
}
