package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

const (
	appName      = "modelchat"
	ConfigDirEnv = "MODELCHAT_CONFIG_DIR"
)

var (
	ErrNoAPIKey   = errors.New("API key required")
	ErrKeyMissing = errors.New("no key stored")
)

// Store keeps per-backend API keys in keys.json under the user config dir.
type Store struct {
	configDir string
}

type KeyEntry struct {
	Key string `json:"key"`
}

type Keys map[string]KeyEntry

// NewStore opens the store in the platform config directory, or in
// $MODELCHAT_CONFIG_DIR when set.
func NewStore(getenv func(string) string) (*Store, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	configDir, err := configDir(getenv)
	if err != nil {
		return nil, err
	}
	return &Store{configDir: configDir}, nil
}

// NewStoreAt opens a store rooted at dir.
func NewStoreAt(dir string) *Store {
	return &Store{configDir: dir}
}

func configDir(getenv func(string) string) (string, error) {
	if dir := getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, appName), nil
	default:
		configHome := getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, appName), nil
	}
}

func (s *Store) Path() string {
	return filepath.Join(s.configDir, "keys.json")
}

func (s *Store) load() (Keys, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Keys), nil
		}
		return nil, err
	}

	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if keys == nil {
		keys = make(Keys)
	}
	return keys, nil
}

func (s *Store) save(keys Keys) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	// owner read/write only
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keys.json: %w", err)
	}
	return nil
}

func (s *Store) Set(backend, key string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}
	keys[backend] = KeyEntry{Key: key}
	return s.save(keys)
}

// Get returns "" without error when no key is stored for backend.
func (s *Store) Get(backend string) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}
	return keys[backend].Key, nil
}

func (s *Store) Delete(backend string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := keys[backend]; !ok {
		return fmt.Errorf("%w for %s", ErrKeyMissing, backend)
	}
	delete(keys, backend)
	return s.save(keys)
}

// List returns stored backend names in sorted order.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolved is an API key and a human-readable note on where it came from.
type Resolved struct {
	Key    string
	Source string
}

// Resolve picks the key for backend in priority order: explicit value,
// stored key, then the envVar environment variable. store may be nil.
func Resolve(explicit, backend, envVar string, store *Store, getenv func(string) string) (Resolved, error) {
	if explicit != "" {
		return Resolved{Key: explicit, Source: "command-line flag"}, nil
	}

	if store != nil {
		if stored, err := store.Get(backend); err == nil && stored != "" {
			return Resolved{Key: stored, Source: "stored key (" + store.Path() + ")"}, nil
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if envKey := getenv(envVar); envKey != "" {
		return Resolved{Key: envKey, Source: fmt.Sprintf("environment variable (%s)", envVar)}, nil
	}

	return Resolved{}, fmt.Errorf("%w: run 'modelchat keys set %s' or set %s", ErrNoAPIKey, backend, envVar)
}
