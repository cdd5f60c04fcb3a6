package analytics

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"lerian-mcp-conflicts/pkg/types"
)

// Report formats
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Renderer turns analytics into human-readable reports
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer with GitHub-style table support
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// Render produces the report in the requested format
func (r *Renderer) Render(a *types.ConflictAnalytics, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatMarkdown, "md":
		return r.Markdown(a), nil
	case FormatHTML:
		return r.HTML(a)
	default:
		return "", fmt.Errorf("unsupported report format: %s", format)
	}
}

// HTML renders the markdown report to an HTML fragment
func (r *Renderer) HTML(a *types.ConflictAnalytics) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(r.Markdown(a)), &buf); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// Markdown renders the analytics as a markdown document
func (r *Renderer) Markdown(a *types.ConflictAnalytics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Conflict Report: %s\n\n", title(string(a.TimeRange)))
	if a.DocumentID != "" {
		fmt.Fprintf(&b, "Document: `%s`\n\n", a.DocumentID)
	}
	if a.UserID != "" {
		fmt.Fprintf(&b, "User: `%s`\n\n", a.UserID)
	}
	fmt.Fprintf(&b, "Generated %s\n\n", a.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Total conflicts: %d\n", a.Summary.TotalConflicts)
	fmt.Fprintf(&b, "- Resolved: %d (%.0f%%)\n", a.Summary.ResolvedConflicts, a.Summary.ResolutionRate*100)
	fmt.Fprintf(&b, "- Average resolution time: %.1f minutes\n\n", a.Summary.AverageResolutionMinutes)

	if len(a.ByTime) > 0 {
		b.WriteString("## Timeline\n\n| Date | Conflicts | Resolved |\n|---|---:|---:|\n")
		for _, t := range a.ByTime {
			fmt.Fprintf(&b, "| %s | %d | %d |\n", t.Date, t.Count, t.Resolved)
		}
		b.WriteString("\n")
	}

	if len(a.ByUser) > 0 {
		b.WriteString("## Users\n\n| User | Involved | Resolved | Avg minutes | Preferred strategy |\n|---|---:|---:|---:|---|\n")
		for _, u := range a.ByUser {
			fmt.Fprintf(&b, "| %s | %d | %d | %.1f | %s |\n",
				escapeCell(u.UserID), u.ConflictsCreated, u.ConflictsResolved, u.AverageResolutionMinutes, r.strategyName(u.PreferredStrategy))
		}
		b.WriteString("\n")
	}

	if len(a.ByDocument) > 0 {
		b.WriteString("## Documents\n\n| Document | Conflicts | Resolved | Hotspots |\n|---|---:|---:|---|\n")
		for _, d := range a.ByDocument {
			hotspots := make([]string, 0, len(d.Hotspots))
			for _, h := range d.Hotspots {
				hotspots = append(hotspots, fmt.Sprintf("%s (%d)", escapeCell(h.Section), h.Conflicts))
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %s |\n",
				escapeCell(d.DocumentID), d.TotalConflicts, d.ResolvedConflicts, strings.Join(hotspots, ", "))
		}
		b.WriteString("\n")
	}

	if len(a.ByStrategy) > 0 {
		b.WriteString("## Strategies\n\n| Strategy | Uses | Avg minutes | Success rate |\n|---|---:|---:|---:|\n")
		for _, s := range a.ByStrategy {
			fmt.Fprintf(&b, "| %s | %d | %.1f | %.0f%% |\n",
				r.strategyName(s.Strategy), s.Uses, s.AverageResolutionMinutes, s.SuccessRate*100)
		}
		b.WriteString("\n")
	}

	if a.Summary.TotalConflicts == 0 {
		b.WriteString("_No conflicts in this period._\n")
	}
	return b.String()
}

func (r *Renderer) strategyName(s types.ResolutionStrategy) string {
	if s == "" {
		return "-"
	}
	return title(strings.ReplaceAll(string(s), "-", " "))
}

// title builds a fresh caser per call; casers are stateful
func title(s string) string {
	return cases.Title(language.English).String(s)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
