package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/config"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service delivers digests via the configured channels
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TrendLine summarizes the latest window of one term
type TrendLine struct {
	Term   string
	Period string
	Count  int
	Change string
	Error  string
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendDigest sends digest to Teams and email when configured. Both channels are tried.
func (s *Service) SendDigest(digest *models.Digest) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(digest); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent digest to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(digest); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent digest via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(digest *models.Digest) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(buildTeamsMessage(digest)).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func buildTeamsMessage(digest *models.Digest) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("GitHub Trend Digest - %d terms", len(digest.Terms)),
		Text:    fmt.Sprintf("Generated %s", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC")),
	}

	if digest.Report != nil {
		var facts []TeamsFact
		for _, entry := range digest.Report.Entries {
			facts = append(facts, TeamsFact{Name: entryName(entry), Value: entrySummary(entry)})
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "H-Index Ranking",
			Facts:         facts,
			Markdown:      true,
		})
	}

	if lines := trendLines(digest); len(lines) > 0 {
		var text []string
		for _, line := range lines {
			if line.Error != "" {
				text = append(text, fmt.Sprintf("**%s**: unavailable (%s)", line.Term, line.Error))
				continue
			}
			text = append(text, fmt.Sprintf("**%s**: %d repositories in %s (%s)", line.Term, line.Count, line.Period, line.Change))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: fmt.Sprintf("Latest %s", digest.Granularity),
			ActivityText:  strings.Join(text, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(digest *models.Digest) error {
	subject := fmt.Sprintf("GitHub Trend Digest - %s", digest.GeneratedAt.Format("January 2, 2006"))

	htmlBody, err := buildEmailHTML(digest)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(digest))
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

const emailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>GitHub Trend Digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #24292f; color: white; padding: 20px; border-radius: 5px; }
        table { border-collapse: collapse; margin: 20px 0; }
        th, td { border: 1px solid #d0d7de; padding: 6px 12px; text-align: right; }
        th:first-child, td:first-child { text-align: left; }
        .failed { color: #cf222e; }
    </style>
</head>
<body>
    <div class="header">
        <h1>GitHub Trend Digest</h1>
        <p>Generated on {{.Digest.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    {{with .Digest.Report}}
    <h2>H-Index Ranking</h2>
    <table>
        <tr><th>Term</th><th>Star H-Index</th><th>Fork H-Index</th><th>Repositories</th><th>Pull Requests</th></tr>
        {{range .Entries}}
        {{if .Result}}
        <tr>
            <td>{{.Rank}}. {{.Term}}</td>
            <td>{{.Result.StarHIndex.Value}}</td>
            <td>{{.Result.ForkHIndex.Value}}</td>
            <td>{{count .Result.TotalRepos}}</td>
            <td>{{count .Result.TotalPRs}}</td>
        </tr>
        {{else}}
        <tr class="failed"><td>{{.Term}}</td><td colspan="4">{{.Error}}</td></tr>
        {{end}}
        {{end}}
    </table>
    {{end}}

    {{if .Trends}}
    <h2>Latest {{.Digest.Granularity}}</h2>
    <ul>
    {{range .Trends}}
        {{if .Error}}
        <li class="failed">{{.Term}}: unavailable ({{.Error}})</li>
        {{else}}
        <li>{{.Term}}: {{.Count}} repositories in {{.Period}} ({{.Change}})</li>
        {{end}}
    {{end}}
    </ul>
    {{end}}

    <hr>
    <p><small>This digest was generated automatically by the GitHub Trend Analyzer.</small></p>
</body>
</html>
`

func buildEmailHTML(digest *models.Digest) (string, error) {
	t, err := template.New("email").Funcs(template.FuncMap{"count": formatCount}).Parse(emailTemplate)
	if err != nil {
		return "", err
	}

	data := struct {
		Digest *models.Digest
		Trends []TrendLine
	}{digest, trendLines(digest)}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func buildEmailText(digest *models.Digest) string {
	var text strings.Builder

	text.WriteString("GitHub Trend Digest\n")
	text.WriteString(fmt.Sprintf("Generated: %s\n", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	if digest.Report != nil {
		text.WriteString("\nH-INDEX RANKING\n")
		text.WriteString("===============\n")
		for _, entry := range digest.Report.Entries {
			text.WriteString(fmt.Sprintf("%s: %s\n", entryName(entry), entrySummary(entry)))
		}
	}

	if lines := trendLines(digest); len(lines) > 0 {
		text.WriteString(fmt.Sprintf("\nLATEST %s\n", strings.ToUpper(string(digest.Granularity))))
		text.WriteString("===============\n")
		for _, line := range lines {
			if line.Error != "" {
				text.WriteString(fmt.Sprintf("%s: unavailable (%s)\n", line.Term, line.Error))
				continue
			}
			text.WriteString(fmt.Sprintf("%s: %d repositories in %s (%s)\n", line.Term, line.Count, line.Period, line.Change))
		}
	}

	text.WriteString("\n---\nThis digest was generated automatically by the GitHub Trend Analyzer.\n")

	return text.String()
}

// trendLines follows digest.Terms order; terms without a trend are skipped
func trendLines(digest *models.Digest) []TrendLine {
	var lines []TrendLine
	for _, term := range digest.Terms {
		trend, ok := digest.Trends[term]
		if !ok {
			continue
		}
		if trend.Error != "" {
			lines = append(lines, TrendLine{Term: term, Error: trend.Error})
			continue
		}
		if len(trend.Points) == 0 {
			continue
		}

		last := trend.Points[len(trend.Points)-1]
		line := TrendLine{Term: term, Period: last.PeriodLabel, Count: last.RepositoryCount, Change: "first period"}
		if len(trend.Points) > 1 {
			line.Change = formatChange(trend.Points[len(trend.Points)-2].RepositoryCount, last.RepositoryCount)
		}
		lines = append(lines, line)
	}
	return lines
}

func formatChange(previous, current int) string {
	if previous == 0 {
		return fmt.Sprintf("%+d", current-previous)
	}
	return fmt.Sprintf("%+.1f%%", float64(current-previous)/float64(previous)*100)
}

func entryName(entry models.ComparisonEntry) string {
	if entry.Result == nil {
		return entry.Term
	}
	return fmt.Sprintf("%d. %s", entry.Rank, entry.Term)
}

func entrySummary(entry models.ComparisonEntry) string {
	if entry.Result == nil {
		return "failed: " + entry.Error
	}
	return fmt.Sprintf("stars %d, forks %d, repositories %s",
		entry.Result.StarHIndex.Value, entry.Result.ForkHIndex.Value, formatCount(entry.Result.TotalRepos))
}

func formatCount(value *int) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *value)
}
