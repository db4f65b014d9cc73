// Package configfiles provides the embedded configuration template used
// to initialize a fresh installation.
package configfiles

import (
	"embed"
	"os"
	"path/filepath"
)

//go:embed config.example.yaml
var configFS embed.FS

// GetConfigExample returns the example configuration file content
func GetConfigExample() ([]byte, error) {
	return configFS.ReadFile("config.example.yaml")
}

// WriteConfigExample writes the example configuration to the target path.
// Existing files are never overwritten.
func WriteConfigExample(targetPath string) error {
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	data, err := GetConfigExample()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(targetPath, data, 0644)
}
