package check

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/reviewhub/reviewhub/internal/configfiles"
)

// TemplateType selects which embedded template seeds a missing file
type TemplateType int

const (
	TemplateConfig TemplateType = iota
)

// FileConfig describes one file the checker looks for
type FileConfig struct {
	Path        string
	Description string
	Template    TemplateType
}

// FileCheckResult is the outcome for one file
type FileCheckResult struct {
	Path        string
	Exists      bool
	Created     bool
	Description string
	Error       error
}

func (c *Checker) checkFiles() error {
	for _, file := range c.RequiredFiles() {
		result := c.checkFile(file)
		c.report.AddFileResult(result)

		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

// checkFile reports a file's presence and, when missing, offers to
// seed it from the embedded template
func (c *Checker) checkFile(file FileConfig) FileCheckResult {
	result := FileCheckResult{
		Path:        file.Path,
		Description: file.Description,
	}

	if fileExists(file.Path) {
		result.Exists = true
		color.New(color.FgGreen).Printf("  ✓ %s\n", file.Path)
		return result
	}

	color.New(color.FgYellow).Printf("  ⚠ %s does not exist\n", file.Path)

	confirm, err := confirmCreate(file.Path)
	if err != nil {
		result.Error = fmt.Errorf("failed to get user confirmation: %w", err)
		return result
	}
	if !confirm {
		return result
	}

	content, err := getTemplateContent(file.Template)
	if err != nil {
		result.Error = fmt.Errorf("failed to get template: %w", err)
		return result
	}

	if err := ensureDir(file.Path); err != nil {
		result.Error = err
		return result
	}

	if err := os.WriteFile(file.Path, content, 0644); err != nil {
		result.Error = fmt.Errorf("failed to create file %s: %w", file.Path, err)
		return result
	}

	result.Created = true
	color.New(color.FgGreen).Printf("  ✓ Created %s\n", file.Path)
	return result
}

func getTemplateContent(t TemplateType) ([]byte, error) {
	switch t {
	case TemplateConfig:
		return configfiles.GetConfigExample()
	default:
		return nil, fmt.Errorf("unknown template type: %d", t)
	}
}
