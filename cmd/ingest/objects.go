package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// localObjects stages uploaded files on local disk. Locators are paths
// relative to the root; path traversal is rejected.
type localObjects struct {
	root string
}

func newLocalObjects(root string) *localObjects {
	os.MkdirAll(root, 0o755)
	return &localObjects{root: root}
}

func (o *localObjects) Save(_ context.Context, data []byte, filename string, _ map[string]string) (string, string, error) {
	id := uuid.NewString()
	locator := id + filepath.Ext(filename)
	if err := os.WriteFile(filepath.Join(o.root, locator), data, 0o644); err != nil {
		return "", "", fmt.Errorf("save object %s: %w", locator, err)
	}
	return id, locator, nil
}

func (o *localObjects) Resolve(_ context.Context, locator string) ([]byte, error) {
	path, err := o.path(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resolve object %s: %w", locator, err)
	}
	return data, nil
}

func (o *localObjects) Delete(_ context.Context, locator string) (bool, error) {
	path, err := o.path(locator)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete object %s: %w", locator, err)
	}
	return true, nil
}

func (o *localObjects) path(locator string) (string, error) {
	if locator == "" || strings.Contains(locator, "..") || strings.ContainsRune(locator, os.PathSeparator) {
		return "", fmt.Errorf("invalid object locator %q", locator)
	}
	return filepath.Join(o.root, locator), nil
}
