package check

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 2).
			Width(50).
			Align(lipgloss.Center)

	headerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15"))
)

// Report accumulates file and validation results and renders them
// for the operator
type Report struct {
	FileResults       []FileCheckResult
	ValidationResults []ValidationResult
}

// NewReport creates an empty report
func NewReport() *Report {
	return &Report{
		FileResults:       make([]FileCheckResult, 0),
		ValidationResults: make([]ValidationResult, 0),
	}
}

// AddFileResult records a file check outcome
func (r *Report) AddFileResult(result FileCheckResult) {
	r.FileResults = append(r.FileResults, result)
}

// AddValidationResult records a validation outcome
func (r *Report) AddValidationResult(result ValidationResult) {
	r.ValidationResults = append(r.ValidationResults, result)
}

// ReportSummary aggregates counts across all recorded results
type ReportSummary struct {
	TotalFiles       int
	FilesExist       int
	FilesCreated     int
	FilesMissing     int
	TotalValidations int
	ValidationsValid int
	ValidationErrors int
	HasErrors        bool
	HasWarnings      bool
}

func (r *Report) calculateSummary() ReportSummary {
	var s ReportSummary

	s.TotalFiles = len(r.FileResults)
	for _, result := range r.FileResults {
		switch {
		case result.Exists || result.Created:
			s.FilesExist++
			if result.Created {
				s.FilesCreated++
			}
		default:
			s.FilesMissing++
		}
		if result.Error != nil {
			s.HasErrors = true
		}
	}

	s.TotalValidations = len(r.ValidationResults)
	for _, result := range r.ValidationResults {
		if result.Valid {
			s.ValidationsValid++
		} else {
			s.ValidationErrors++
			if result.Error != nil {
				s.HasErrors = true
			}
		}
		if len(result.Warnings) > 0 {
			s.HasWarnings = true
		}
	}

	return s
}

// Print renders the one-line summary with a separator above it
func (r *Report) Print() {
	fmt.Println(separatorStyle.Render(strings.Repeat("─", 50)))
	r.printSummary(r.calculateSummary())
}

func (r *Report) printSummary(summary ReportSummary) {
	switch {
	case summary.HasErrors:
		color.New(color.FgRed, color.Bold).Print("✗ Check completed")
	case summary.HasWarnings || summary.FilesMissing > 0:
		color.New(color.FgYellow, color.Bold).Print("⚠ Check completed")
	default:
		color.New(color.FgGreen, color.Bold).Print("✓ Check completed")
	}

	var details []string
	if summary.FilesCreated > 0 {
		details = append(details, fmt.Sprintf("%d file(s) created", summary.FilesCreated))
	}
	if summary.FilesMissing > 0 {
		details = append(details, fmt.Sprintf("%d file(s) missing", summary.FilesMissing))
	}
	if summary.ValidationErrors > 0 {
		details = append(details, fmt.Sprintf("%d validation error(s)", summary.ValidationErrors))
	}

	if len(details) > 0 {
		fmt.Printf(" (%s)\n", strings.Join(details, ", "))
	} else {
		fmt.Println(" - All checks passed")
	}
}

// PrintDetailedReport renders the full report: header, per-file and
// per-validation sections, then the summary
func (r *Report) PrintDetailedReport() {
	fmt.Println(headerBoxStyle.Render(headerTitleStyle.Render("ReviewHub Environment Check Report")))
	fmt.Println()

	r.printFileSection()
	fmt.Println()

	r.printValidationSection()
	fmt.Println()

	r.Print()
}

func (r *Report) printFileSection() {
	fmt.Println(sectionStyle.Render("📁 File Check"))

	for _, result := range r.FileResults {
		switch {
		case result.Error != nil:
			color.New(color.FgRed).Printf("  ✗ %s: %v\n", result.Path, result.Error)
		case result.Exists && result.Created:
			color.New(color.FgGreen).Printf("  ✓ %s (created)\n", result.Path)
		case result.Exists:
			color.New(color.FgGreen).Printf("  ✓ %s\n", result.Path)
		default:
			color.New(color.FgYellow).Printf("  ⚠ %s does not exist\n", result.Path)
		}
	}
}

func (r *Report) printValidationSection() {
	fmt.Println(sectionStyle.Render("📝 Configuration Validation"))

	for _, result := range r.ValidationResults {
		if result.Valid {
			if result.Detail != "" {
				color.New(color.FgGreen).Printf("  ✓ %s (%s)\n", result.Name, result.Detail)
			} else {
				color.New(color.FgGreen).Printf("  ✓ %s\n", result.Name)
			}
		} else if result.Error != nil {
			color.New(color.FgRed).Printf("  ✗ %s: %v\n", result.Name, result.Error)
		}

		for _, warning := range result.Warnings {
			color.New(color.FgYellow).Printf("    └─ %s\n", warning)
		}
	}
}
