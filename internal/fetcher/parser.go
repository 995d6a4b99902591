package fetcher

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// MaxFileSizeBytes caps individual files captured into an artifact.
const MaxFileSizeBytes = 1_000_000

// allowedExtensions are the text file types worth capturing for analysis.
var allowedExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true,
	".sh": true, ".bash": true, ".yaml": true, ".yml": true,
	".json": true, ".md": true, ".txt": true, ".toml": true,
	".ini": true, ".cfg": true, ".dockerfile": true, ".sql": true,
}

// excludedPathParts are directory names never worth capturing.
var excludedPathParts = map[string]bool{
	"node_modules": true, "dist": true, "build": true, ".git": true,
	"__pycache__": true, ".next": true, ".cache": true, ".venv": true,
	"venv": true, "target": true, "coverage": true,
}

// skillMDPatterns are the candidate SKILL.md locations tried in order,
// with %s replaced by the skill slug.
var skillMDPatterns = []string{
	"%s/SKILL.md",
	"skills/%s/SKILL.md",
	"%s/skill.md",
	"skills/%s/skill.md",
}

var (
	githubBlobURLRe = regexp.MustCompile(`(?i)^https?://github\.com/([^/]+)/([^/]+)/blob/[^/]+/(.+)$`)
	githubRawURLRe  = regexp.MustCompile(`(?i)^https?://raw\.githubusercontent\.com/([^/]+)/([^/]+)/[^/]+/(.+)$`)
	markdownLinkRe  = regexp.MustCompile(`\[[^\]]*]\(([^)]+)\)`)
	pathishRe       = regexp.MustCompile(`(\.{1,2}/[^\s` + "`" + `"'>)]+|[\w./-]+/[\w./-]+(?:\.[\w.-]+)?)`)
)

// SkillMeta is metadata extracted from SKILL.md frontmatter.
type SkillMeta struct {
	Name        string
	Description string
	Version     string
	License     string
}

// ManifestParser parses SKILL.md files: frontmatter metadata plus the
// repo-relative paths the skill references.
type ManifestParser struct {
	md goldmark.Markdown
}

// NewManifestParser creates a parser with frontmatter support.
func NewManifestParser() *ManifestParser {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
		),
	)
	return &ManifestParser{md: md}
}

// ParseMeta extracts frontmatter metadata from SKILL.md content.
func (p *ManifestParser) ParseMeta(content string) (*SkillMeta, error) {
	var buf bytes.Buffer
	context := parser.NewContext()
	if err := p.md.Convert([]byte(content), &buf, parser.WithContext(context)); err != nil {
		return nil, err
	}

	frontmatter := meta.Get(context)
	result := &SkillMeta{}
	if name, ok := frontmatter["name"].(string); ok {
		result.Name = strings.TrimSpace(name)
	}
	if desc, ok := frontmatter["description"].(string); ok {
		result.Description = strings.TrimSpace(desc)
	}
	if version, ok := frontmatter["version"].(string); ok {
		result.Version = strings.TrimSpace(version)
	}
	if license, ok := frontmatter["license"].(string); ok {
		result.License = strings.TrimSpace(license)
	}
	return result, nil
}

// LocateSkillMD finds the SKILL.md path for a slug in a tree listing.
// Pattern candidates are tried first; a lone root SKILL.md wins when the
// repo hosts a single skill; finally any skill.md whose parent directory
// matches the slug.
func LocateSkillMD(treePaths map[string]bool, skillSlug string, repoSkillCount int) string {
	for _, pattern := range skillMDPatterns {
		candidate := strings.Replace(pattern, "%s", skillSlug, 1)
		if treePaths[candidate] {
			return candidate
		}
	}
	if repoSkillCount == 1 {
		if treePaths["SKILL.md"] {
			return "SKILL.md"
		}
		if treePaths["skill.md"] {
			return "skill.md"
		}
	}

	slugLower := strings.ToLower(skillSlug)
	sorted := make([]string, 0, len(treePaths))
	for p := range treePaths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)
	for _, p := range sorted {
		if strings.ToLower(path.Base(p)) != "skill.md" {
			continue
		}
		if strings.ToLower(path.Base(path.Dir(p))) == slugLower {
			return p
		}
	}
	return ""
}

// ExtractReferencedPaths pulls repo-relative file paths out of SKILL.md
// content: markdown link targets (including same-repo github blob/raw
// URLs) and path-looking tokens in prose and code blocks. Only allowed
// text extensions survive; the SKILL.md itself is excluded.
func ExtractReferencedPaths(content, owner, repo, skillMDPath string) []string {
	skillDir := path.Dir(skillMDPath)
	if skillDir == "." {
		skillDir = ""
	}
	refs := make(map[string]bool)

	maybeAdd := func(candidate string) {
		normalized := normalizeRepoPath(candidate, skillDir)
		if normalized == "" {
			return
		}
		if !hasAllowedExtension(normalized) {
			return
		}
		refs[normalized] = true
	}

	ownerLower := strings.ToLower(owner)
	repoLower := strings.ToLower(repo)

	for _, match := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		target := strings.Trim(strings.TrimSpace(match[1]), `<>"'`)
		if target == "" {
			continue
		}
		if m := githubBlobURLRe.FindStringSubmatch(target); m != nil {
			if strings.ToLower(m[1]) == ownerLower && strings.ToLower(m[2]) == repoLower {
				maybeAdd(m[3])
			}
			continue
		}
		if m := githubRawURLRe.FindStringSubmatch(target); m != nil {
			if strings.ToLower(m[1]) == ownerLower && strings.ToLower(m[2]) == repoLower {
				maybeAdd(m[3])
			}
			continue
		}
		maybeAdd(target)
	}

	for _, candidate := range pathishRe.FindAllString(content, -1) {
		maybeAdd(candidate)
	}

	delete(refs, skillMDPath)

	result := make([]string, 0, len(refs))
	for ref := range refs {
		result = append(result, ref)
	}
	sort.Strings(result)
	return result
}

// normalizeRepoPath resolves path text to a clean repo-relative path, or
// "" when the candidate is not a usable repo path.
func normalizeRepoPath(raw, baseDir string) string {
	value := strings.TrimSpace(raw)
	if unescaped, err := url.PathUnescape(value); err == nil {
		value = unescaped
	}
	if value == "" || strings.HasPrefix(value, "#") {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return ""
	}

	value = strings.SplitN(value, "?", 2)[0]
	value = strings.SplitN(value, "#", 2)[0]

	var candidate string
	if strings.HasPrefix(value, "/") {
		candidate = value[1:]
	} else if baseDir != "" {
		candidate = baseDir + "/" + value
	} else {
		candidate = value
	}

	var stack []string
	for _, piece := range strings.Split(candidate, "/") {
		switch piece {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return ""
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, piece)
		}
	}
	if len(stack) == 0 {
		return ""
	}
	return strings.Join(stack, "/")
}

// hasAllowedExtension reports whether a path names a capturable text file.
func hasAllowedExtension(p string) bool {
	lower := strings.ToLower(p)
	name := path.Base(lower)
	if name == "dockerfile" || strings.HasSuffix(name, ".dockerfile") {
		return true
	}
	return allowedExtensions[path.Ext(lower)]
}

// isExcludedPath reports whether any path segment is a generated or
// vendored directory.
func isExcludedPath(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if excludedPathParts[part] {
			return true
		}
	}
	return false
}
