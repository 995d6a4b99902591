// Package discovery parses skill catalog pages into skill rows and
// feeds them into the content store.
package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SourceSkillsSh is the catalog source identifier for skills.sh pages.
const SourceSkillsSh = "skills.sh"

var (
	skillPathRe = regexp.MustCompile(`^/([^/]+)/([^/]+)/([^/]+)/?$`)
	countRe     = regexp.MustCompile(`^\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*([KMBkmb]?)\s*$`)
	relDateRe   = regexp.MustCompile(`(?i)^\s*(\d+)\s+(day|week|month|year)s?\s+ago\s*$`)
	installRe   = regexp.MustCompile(`(?i)\$\s*npx\s+skills\s+add[^\n]+--skill[^\n]*`)
	platformRe  = regexp.MustCompile(`^(.*\S)\s+([0-9][0-9,]*(?:\.[0-9]+)?[KMBkmb]?)$`)
)

var absDateFormats = []string{"Jan 2, 2006", "January 2, 2006"}

// Headings that terminate a section's value block on catalog pages.
var stopHeaders = map[string]bool{
	"Weekly Installs": true,
	"Repository":      true,
	"First Seen":      true,
	"Installed on":    true,
}

// PageRecord is the parsed content of one skill catalog page.
type PageRecord struct {
	Source         string
	Owner          string
	Repo           string
	SkillSlug      string
	PageURL        string
	RepositoryURL  string
	InstallCommand string
	SkillMD        string
	WeeklyInstalls int
	FirstSeen      *time.Time
	InstalledOn    map[string]int
}

// ParseCount parses count strings like "249.7K", "1.2M", "71".
func ParseCount(value string) (int, error) {
	m := countRe.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("invalid count string: %q", value)
	}
	base, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count string: %q", value)
	}
	multiplier := 1.0
	switch strings.ToUpper(m[2]) {
	case "K":
		multiplier = 1_000
	case "M":
		multiplier = 1_000_000
	case "B":
		multiplier = 1_000_000_000
	}
	return int(base * multiplier), nil
}

// ParseFirstSeen parses first-seen text, absolute ("Jan 2, 2025") or
// relative ("3 weeks ago").
func ParseFirstSeen(raw string, now time.Time) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty first seen date")
	}
	for _, format := range absDateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	if m := relDateRe.FindStringSubmatch(value); m != nil {
		amount, _ := strconv.Atoi(m[1])
		days := amount
		switch strings.ToLower(m[2]) {
		case "week":
			days = amount * 7
		case "month":
			days = amount * 30
		case "year":
			days = amount * 365
		}
		return now.AddDate(0, 0, -days), nil
	}
	return time.Time{}, fmt.Errorf("unable to parse first seen date: %q", raw)
}

// ParsePagePath splits a catalog page URL path into owner, repo, slug.
func ParsePagePath(pageURL string) (owner, repo, slug string, err error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse page URL: %w", err)
	}
	m := skillPathRe.FindStringSubmatch(parsed.Path)
	if m == nil {
		return "", "", "", fmt.Errorf("not a skill page path: %s", pageURL)
	}
	return m[1], m[2], m[3], nil
}

// ParsePage parses one skill page's HTML into a record.
func ParsePage(pageURL, html string, now time.Time) (*PageRecord, error) {
	owner, repo, slug, err := ParsePagePath(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	lines := textLines(doc)
	record := &PageRecord{
		Source:      SourceSkillsSh,
		Owner:       owner,
		Repo:        repo,
		SkillSlug:   slug,
		PageURL:     pageURL,
		InstalledOn: map[string]int{},
	}

	record.InstallCommand = extractInstallCommand(doc)
	record.SkillMD = extractSkillMD(lines)

	if values := sectionValues(lines, "Weekly Installs"); len(values) > 0 {
		if count, err := ParseCount(values[0]); err == nil {
			record.WeeklyInstalls = count
		}
	}

	record.RepositoryURL = extractRepositoryURL(doc, lines, pageURL, owner, repo)

	if values := sectionValues(lines, "First Seen"); len(values) > 0 {
		if seen, err := ParseFirstSeen(values[0], now); err == nil {
			record.FirstSeen = &seen
		}
	}

	for _, line := range sectionValues(lines, "Installed on") {
		m := platformRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if count, err := ParseCount(m[2]); err == nil {
			record.InstalledOn[strings.ToLower(strings.TrimSpace(m[1]))] = count
		}
	}

	return record, nil
}

// ExtractSkillURLs pulls same-host skill page URLs out of catalog HTML.
func ExtractSkillURLs(baseURL, html string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	seen := map[string]bool{}
	var urls []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host {
			return
		}
		if !skillPathRe.MatchString(abs.Path) {
			return
		}
		canonical := abs.Scheme + "://" + abs.Host + strings.TrimRight(abs.Path, "/")
		if !seen[canonical] {
			seen[canonical] = true
			urls = append(urls, canonical)
		}
	})
	return urls, nil
}

// textLines renders the page text one DOM text node per line, matching
// how sections appear as heading-then-values runs.
func textLines(doc *goquery.Document) []string {
	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) == "#text" {
				lines = append(lines, strings.TrimSpace(child.Text()))
				return
			}
			walk(child)
		})
	}
	walk(doc.Selection)
	return lines
}

func extractInstallCommand(doc *goquery.Document) string {
	var command string
	doc.Find("code, pre").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if strings.Contains(text, "npx skills add") && strings.Contains(text, "--skill") {
			command = text
			return false
		}
		return true
	})
	if command != "" {
		return command
	}
	if m := installRe.FindString(doc.Text()); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// sectionValues returns the non-empty lines following a heading, up to
// the next known heading.
func sectionValues(lines []string, heading string) []string {
	idx := -1
	for i, line := range lines {
		if line == heading {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var values []string
	for _, line := range lines[idx+1:] {
		if line == "" {
			continue
		}
		if stopHeaders[line] {
			break
		}
		values = append(values, line)
	}
	return values
}

func extractSkillMD(lines []string) string {
	idx := -1
	for i, line := range lines {
		if line == "SKILL.md" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}
	var content []string
	for _, line := range lines[idx+1:] {
		if stopHeaders[line] {
			break
		}
		content = append(content, line)
	}
	joined := strings.TrimSpace(strings.Join(content, "\n"))
	if strings.Contains(joined, "No SKILL.md available for this skill.") {
		return "No SKILL.md available for this skill."
	}
	return joined
}

func extractRepositoryURL(doc *goquery.Document, lines []string, pageURL, owner, repo string) string {
	if values := sectionValues(lines, "Repository"); len(values) > 0 {
		hint := values[0]
		if strings.HasPrefix(hint, "http://") || strings.HasPrefix(hint, "https://") {
			return hint
		}
	}

	base, _ := url.Parse(pageURL)
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || !strings.Contains(href, "github.com") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := href
		if base != nil {
			abs = base.ResolveReference(ref).String()
		}
		if strings.Contains(abs, "/"+owner+"/"+repo) {
			found = abs
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo)
}
