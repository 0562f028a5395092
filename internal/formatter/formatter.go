// package formatter renders resolved streams, profiles, cache entries and
// playback history as plain text, JSON or CSV.
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
)

// ToJSON renders v as indented JSON with a trailing newline.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// FormatRemaining renders the time left until expiry, or "expired".
func FormatRemaining(expiresAt, now time.Time) string {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return "expired"
	}
	return d.Truncate(time.Second).String()
}

// StreamToText renders a resolved stream as labelled lines.
func StreamToText(s models.ResolvedStream, now time.Time) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Track:   %s\n", s.TrackID)
	fmt.Fprintf(&buf, "Profile: %s\n", s.Profile)
	fmt.Fprintf(&buf, "Format:  %d (%s, %d bps)\n", s.FormatID, s.MimeType, s.Bitrate)
	fmt.Fprintf(&buf, "Expires: %s (%s)\n", s.ExpiresAt.Local().Format(time.RFC3339), FormatRemaining(s.ExpiresAt, now))
	fmt.Fprintf(&buf, "URL:     %s\n", s.URL)

	return buf.Bytes()
}

// ProfilesToText renders the registry in the order the resolver tries it.
func ProfilesToText(primary, creator models.ClientProfile, fallbacks []models.ClientProfile) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("primary  %s%s\n", primary, profileFlags(primary)))
	buf.WriteString(fmt.Sprintf("creator  %s%s\n", creator, profileFlags(creator)))
	for i, p := range fallbacks {
		buf.WriteString(fmt.Sprintf("%-8d %s%s\n", i, p, profileFlags(p)))
	}

	return buf.Bytes()
}

func profileFlags(p models.ClientProfile) string {
	var flags []string
	if p.RequiresAuth {
		flags = append(flags, "auth")
	}
	if p.SupportsOriginToken {
		flags = append(flags, "pot")
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ",") + "]"
}

// CachedFormatsToText renders one line per cache entry.
func CachedFormatsToText(formats []models.CachedFormat, now time.Time) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Cached formats: %d\n\n", len(formats)))
	for i, f := range formats {
		buf.WriteString(fmt.Sprintf("%d. %s itag %d via %s, %s left\n", i+1, f.TrackID, f.FormatID, f.Profile, FormatRemaining(f.ExpiresAt, now)))
	}

	return buf.Bytes()
}

// CachedFormatsToCSV converts cache entries to CSV with columns: TrackID, FormatID, MimeType, Bitrate, Profile, ExpiresAt, URL
func CachedFormatsToCSV(formats []models.CachedFormat) ([]byte, error) {
	records := make([][]string, 0, len(formats))
	for _, f := range formats {
		records = append(records, []string{
			string(f.TrackID),
			strconv.Itoa(f.FormatID),
			f.MimeType,
			strconv.Itoa(f.Bitrate),
			f.Profile,
			f.ExpiresAt.UTC().Format(time.RFC3339),
			f.URL,
		})
	}
	return writeCSV([]string{"TrackID", "FormatID", "MimeType", "Bitrate", "Profile", "ExpiresAt", "URL"}, records)
}

// EventsToText renders playback history, one event per line.
func EventsToText(events []models.PlaybackEvent) []byte {
	var buf bytes.Buffer

	for _, e := range events {
		line := fmt.Sprintf("%s  %-9s %s", e.CreatedAt.Local().Format(time.DateTime), e.Kind, e.TrackID)
		if e.Category != "" {
			line += fmt.Sprintf(" (%s, attempt %d)", e.Category, e.Attempt)
		}
		if e.Detail != "" {
			line += ": " + e.Detail
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes()
}

// EventsToCSV converts playback history to CSV with columns: CreatedAt, SessionID, TrackID, Kind, Category, Attempt, Detail
func EventsToCSV(events []models.PlaybackEvent) ([]byte, error) {
	records := make([][]string, 0, len(events))
	for _, e := range events {
		records = append(records, []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.SessionID,
			string(e.TrackID),
			e.Kind,
			e.Category,
			strconv.Itoa(e.Attempt),
			e.Detail,
		})
	}
	return writeCSV([]string{"CreatedAt", "SessionID", "TrackID", "Kind", "Category", "Attempt", "Detail"}, records)
}

// PrefetchReportToCSV converts prefetch results to CSV with columns: TrackID, Status, Profile, ExpiresAt, DurationMs, Error
func PrefetchReportToCSV(report *models.PrefetchReport) ([]byte, error) {
	records := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		status, expires := "failed", ""
		if r.OK() {
			status, expires = "resolved", r.ExpiresAt.UTC().Format(time.RFC3339)
		}
		records = append(records, []string{
			string(r.TrackID),
			status,
			r.Profile,
			expires,
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			r.Error,
		})
	}
	return writeCSV([]string{"TrackID", "Status", "Profile", "ExpiresAt", "DurationMs", "Error"}, records)
}

// WritePrefetchReport writes the report to path as CSV when the extension is
// .csv and as JSON otherwise, creating parent directories as needed.
func WritePrefetchReport(report *models.PrefetchReport, path string) error {
	if path == "" {
		return fmt.Errorf("empty report path")
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		data, err = PrefetchReportToCSV(report)
	} else {
		data, err = ToJSON(report)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeCSV(headers []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write CSV records: %w", err)
	}

	return buf.Bytes(), nil
}
