package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"lerian-mcp-conflicts/pkg/types"
)

// OutputFormatter renders command results
type OutputFormatter interface {
	FormatAnalytics(a *types.ConflictAnalytics) error
	FormatUserStats(stats *types.UserStats) error
	FormatDocumentStats(stats *types.DocumentStats) error
	FormatConflictList(conflicts []*types.EditingConflict) error
	FormatSuggestion(s *types.ResolutionSuggestion) error
}

// TableFormatter formats output as ASCII tables
type TableFormatter struct {
	writer  io.Writer
	heading *color.Color
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(w io.Writer) OutputFormatter {
	return &TableFormatter{writer: w, heading: color.New(color.FgCyan, color.Bold)}
}

func (f *TableFormatter) title(s string) {
	_, _ = f.heading.Fprintln(f.writer, s)
}

// FormatAnalytics prints the summary followed by one table per breakdown
func (f *TableFormatter) FormatAnalytics(a *types.ConflictAnalytics) error {
	scope := string(a.TimeRange)
	if a.UserID != "" {
		scope += ", user " + a.UserID
	}
	if a.DocumentID != "" {
		scope += ", document " + a.DocumentID
	}
	f.title("Conflict analytics (" + scope + ")")

	table := tablewriter.NewWriter(f.writer)
	table.Header("Metric", "Value")
	_ = table.Append([]string{"Total conflicts", strconv.Itoa(a.Summary.TotalConflicts)})
	_ = table.Append([]string{"Resolved", strconv.Itoa(a.Summary.ResolvedConflicts)})
	_ = table.Append([]string{"Resolution rate", percent(a.Summary.ResolutionRate)})
	_ = table.Append([]string{"Avg resolution", minutes(a.Summary.AverageResolutionMinutes)})
	if err := table.Render(); err != nil {
		return err
	}

	if len(a.ByTime) > 0 {
		f.title("By time")
		table = tablewriter.NewWriter(f.writer)
		table.Header("Date", "Conflicts", "Resolved")
		for _, b := range a.ByTime {
			_ = table.Append([]string{b.Date, strconv.Itoa(b.Count), strconv.Itoa(b.Resolved)})
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(a.ByUser) > 0 {
		f.title("By user")
		table = tablewriter.NewWriter(f.writer)
		table.Header("User", "Created", "Resolved", "Avg resolution", "Preferred")
		for _, u := range a.ByUser {
			_ = table.Append([]string{
				u.UserID,
				strconv.Itoa(u.ConflictsCreated),
				strconv.Itoa(u.ConflictsResolved),
				minutes(u.AverageResolutionMinutes),
				string(u.PreferredStrategy),
			})
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(a.ByDocument) > 0 {
		f.title("By document")
		table = tablewriter.NewWriter(f.writer)
		table.Header("Document", "Conflicts", "Resolved", "Hotspots")
		for _, d := range a.ByDocument {
			_ = table.Append([]string{
				d.DocumentID,
				strconv.Itoa(d.TotalConflicts),
				strconv.Itoa(d.ResolvedConflicts),
				hotspots(d.Hotspots),
			})
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(a.ByStrategy) > 0 {
		f.title("By strategy")
		table = tablewriter.NewWriter(f.writer)
		table.Header("Strategy", "Uses", "Avg resolution", "Success rate")
		for _, s := range a.ByStrategy {
			_ = table.Append([]string{
				string(s.Strategy),
				strconv.Itoa(s.Uses),
				minutes(s.AverageResolutionMinutes),
				percent(s.SuccessRate),
			})
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	return nil
}

// FormatUserStats formats a user's editing pattern summary
func (f *TableFormatter) FormatUserStats(stats *types.UserStats) error {
	f.title("User " + stats.UserID)

	table := tablewriter.NewWriter(f.writer)
	table.Header("Field", "Value")
	_ = table.Append([]string{"Total edits", strconv.Itoa(stats.TotalEdits)})
	_ = table.Append([]string{"Conflict frequency", strconv.FormatFloat(stats.ConflictFrequency, 'f', 2, 64)})
	_ = table.Append([]string{"Collaborators", strconv.Itoa(stats.CollaboratorCount)})
	if stats.TopDocumentType != "" {
		_ = table.Append([]string{"Top document type", stats.TopDocumentType})
	}
	if stats.TopStrategy != "" {
		_ = table.Append([]string{"Top strategy", string(stats.TopStrategy)})
	}
	return table.Render()
}

// FormatDocumentStats formats conflict totals for a document
func (f *TableFormatter) FormatDocumentStats(stats *types.DocumentStats) error {
	f.title("Document " + stats.DocumentID)

	table := tablewriter.NewWriter(f.writer)
	table.Header("Field", "Value")
	_ = table.Append([]string{"Total", strconv.Itoa(stats.Total)})
	_ = table.Append([]string{"Resolved", strconv.Itoa(stats.Resolved)})
	_ = table.Append([]string{"Open", strconv.Itoa(stats.Open)})
	for _, sev := range []types.Severity{types.SeverityHigh, types.SeverityMedium, types.SeverityLow} {
		_ = table.Append([]string{"Severity " + severity(sev), strconv.Itoa(stats.BySeverity[sev])})
	}
	if len(stats.Hotspots) > 0 {
		_ = table.Append([]string{"Hotspots", hotspots(stats.Hotspots)})
	}
	if len(stats.Participants) > 0 {
		_ = table.Append([]string{"Participants", strings.Join(stats.Participants, ", ")})
	}
	if stats.LastDetected != nil {
		_ = table.Append([]string{"Last detected", stats.LastDetected.Format("2006-01-02 15:04")})
	}
	return table.Render()
}

// FormatConflictList formats conflicts one per row
func (f *TableFormatter) FormatConflictList(conflicts []*types.EditingConflict) error {
	if len(conflicts) == 0 {
		_, _ = fmt.Fprintln(f.writer, "No conflicts found.")
		return nil
	}

	table := tablewriter.NewWriter(f.writer)
	table.Header("#", "ID", "Section", "Severity", "Users", "Status", "Detected")
	for i, c := range conflicts {
		status := color.YellowString("open")
		if c.IsResolved() {
			status = color.GreenString("resolved")
		}
		_ = table.Append([]string{
			strconv.Itoa(i + 1),
			truncateID(c.ID),
			c.Section,
			severity(c.Severity),
			strings.Join(userIDs(c), ", "),
			status,
			c.Detected.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

// FormatSuggestion formats a resolution suggestion
func (f *TableFormatter) FormatSuggestion(s *types.ResolutionSuggestion) error {
	f.title("Suggestion for " + s.ConflictID)

	table := tablewriter.NewWriter(f.writer)
	table.Header("Field", "Value")
	_ = table.Append([]string{"Strategy", string(s.SuggestedStrategy)})
	_ = table.Append([]string{"Confidence", percent(s.Confidence)})
	_ = table.Append([]string{"Reasoning", s.Reasoning})
	if s.SuggestedContent != "" {
		_ = table.Append([]string{"Content", s.SuggestedContent})
	}
	if len(s.AlternativeStrategies) > 0 {
		alts := make([]string, 0, len(s.AlternativeStrategies))
		for _, a := range s.AlternativeStrategies {
			alts = append(alts, string(a))
		}
		_ = table.Append([]string{"Alternatives", strings.Join(alts, ", ")})
	}
	return table.Render()
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	writer io.Writer
	pretty bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer, pretty bool) OutputFormatter {
	return &JSONFormatter{writer: w, pretty: pretty}
}

func (f *JSONFormatter) write(v interface{}) error {
	var (
		data []byte
		err  error
	)
	if f.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(f.writer, string(data))
	return err
}

func (f *JSONFormatter) FormatAnalytics(a *types.ConflictAnalytics) error { return f.write(a) }

func (f *JSONFormatter) FormatUserStats(stats *types.UserStats) error { return f.write(stats) }

func (f *JSONFormatter) FormatDocumentStats(stats *types.DocumentStats) error { return f.write(stats) }

func (f *JSONFormatter) FormatSuggestion(s *types.ResolutionSuggestion) error { return f.write(s) }

// FormatConflictList wraps the list so consumers always see a count
func (f *JSONFormatter) FormatConflictList(conflicts []*types.EditingConflict) error {
	if conflicts == nil {
		conflicts = []*types.EditingConflict{}
	}
	return f.write(map[string]interface{}{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// getOutputFormatter returns the appropriate formatter based on output format
func (c *CLI) getOutputFormatter(cmd *cobra.Command) OutputFormatter {
	writer := cmd.OutOrStdout()
	if strings.EqualFold(c.outputFormat, OutputJSON) {
		return NewJSONFormatter(writer, true)
	}
	return NewTableFormatter(writer)
}

func severity(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return color.RedString(string(s))
	case types.SeverityMedium:
		return color.YellowString(string(s))
	default:
		return color.GreenString(string(s))
	}
}

func percent(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

func minutes(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + " min"
}

func hotspots(h []types.SectionHotspot) string {
	parts := make([]string, 0, len(h))
	for _, s := range h {
		parts = append(parts, fmt.Sprintf("%s (%d)", s.Section, s.Conflicts))
	}
	return strings.Join(parts, ", ")
}

func userIDs(c *types.EditingConflict) []string {
	ids := make([]string, 0, len(c.Users))
	for _, u := range c.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

// truncateID shortens UUIDs for display
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
