// Package prefs хранит локальные настройки клиента в YAML-файле.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Values - содержимое файла настроек.
type Values struct {
	SkipDeleteWarning bool `yaml:"skipDeleteWarning"`
}

// DefaultPath возвращает путь к файлу настроек в каталоге конфигурации пользователя.
func DefaultPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "ludexstore", "prefs.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ludexstore", "prefs.yaml")
}

// File - настройки, сохраняемые в файл. Отсутствующий файл равен настройкам по умолчанию.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile создаёт хранилище настроек по пути path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path возвращает путь к файлу.
func (f *File) Path() string { return f.path }

// Load читает настройки.
func (f *File) Load() (Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// SkipDeleteWarning сообщает, отключено ли подтверждение удаления.
func (f *File) SkipDeleteWarning() (bool, error) {
	v, err := f.Load()
	return v.SkipDeleteWarning, err
}

// SetSkipDeleteWarning сохраняет признак отключения подтверждения удаления.
func (f *File) SetSkipDeleteWarning(skip bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.load()
	if err != nil {
		return err
	}
	v.SkipDeleteWarning = skip
	return f.save(v)
}

func (f *File) load() (Values, error) {
	var v Values
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Values{}, fmt.Errorf("parse preferences %s: %w", f.path, err)
	}
	return v, nil
}

// save пишет файл через временный файл и rename, чтобы не оставить его обрезанным.
func (f *File) save(v Values) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("create preferences file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
