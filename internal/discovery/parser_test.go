package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const samplePageHTML = `<!DOCTYPE html>
<html>
<body>
  <h1>deploy-helper</h1>
  <div><code>$ npx skills add acme/skills --skill deploy-helper</code></div>
  <section>
    <h2>Weekly Installs</h2>
    <span>249.7K</span>
  </section>
  <section>
    <h2>Repository</h2>
    <a href="https://github.com/acme/skills">acme/skills</a>
  </section>
  <section>
    <h2>First Seen</h2>
    <span>3 weeks ago</span>
  </section>
  <section>
    <h2>Installed on</h2>
    <div>Claude Code 180.2K</div>
    <div>Cursor 69.5K</div>
  </section>
  <section>
    <h2>SKILL.md</h2>
    <div>name: deploy-helper</div>
    <div>description: Deploys things.</div>
  </section>
</body>
</html>`

func TestParseCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"71", 71},
		{"1,234", 1234},
		{"249.7K", 249700},
		{"1.2M", 1200000},
		{"2B", 2000000000},
		{" 15k ", 15000},
	}
	for _, tt := range tests {
		got, err := ParseCount(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		require.Equal(t, tt.want, got, "input %q", tt.input)
	}

	for _, bad := range []string{"", "abc", "K", "1.2.3M"} {
		_, err := ParseCount(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestParseFirstSeen(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	abs, err := ParseFirstSeen("Jan 2, 2025", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), abs)

	rel, err := ParseFirstSeen("3 weeks ago", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -21), rel)

	rel, err = ParseFirstSeen("1 day ago", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -1), rel)

	rel, err = ParseFirstSeen("2 months ago", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -60), rel)

	_, err = ParseFirstSeen("", now)
	require.Error(t, err)
	_, err = ParseFirstSeen("sometime", now)
	require.Error(t, err)
}

func TestParsePagePath(t *testing.T) {
	owner, repo, slug, err := ParsePagePath("https://skills.sh/acme/skills/deploy-helper")
	require.NoError(t, err)
	require.Equal(t, "acme", owner)
	require.Equal(t, "skills", repo)
	require.Equal(t, "deploy-helper", slug)

	_, _, _, err = ParsePagePath("https://skills.sh/acme/skills")
	require.Error(t, err)
	_, _, _, err = ParsePagePath("https://skills.sh/")
	require.Error(t, err)
}

func TestParsePage(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	record, err := ParsePage("https://skills.sh/acme/skills/deploy-helper", samplePageHTML, now)
	require.NoError(t, err)

	require.Equal(t, SourceSkillsSh, record.Source)
	require.Equal(t, "acme", record.Owner)
	require.Equal(t, "skills", record.Repo)
	require.Equal(t, "deploy-helper", record.SkillSlug)
	require.Equal(t, "$ npx skills add acme/skills --skill deploy-helper", record.InstallCommand)
	require.Equal(t, 249700, record.WeeklyInstalls)
	require.Equal(t, "https://github.com/acme/skills", record.RepositoryURL)
	require.NotNil(t, record.FirstSeen)
	require.Equal(t, now.AddDate(0, 0, -21), *record.FirstSeen)
	require.Equal(t, 180200, record.InstalledOn["claude code"])
	require.Equal(t, 69500, record.InstalledOn["cursor"])
	require.Contains(t, record.SkillMD, "name: deploy-helper")
}

func TestParsePageRepositoryFallback(t *testing.T) {
	html := `<html><body><h1>deploy-helper</h1></body></html>`

	record, err := ParsePage("https://skills.sh/acme/skills/deploy-helper", html, time.Now())
	require.NoError(t, err)
	require.Equal(t, "https://github.com/acme/skills", record.RepositoryURL,
		"owner/repo from the page path when the page has no repo link")
}

func TestParsePageRejectsNonSkillURL(t *testing.T) {
	_, err := ParsePage("https://skills.sh/trending", "<html></html>", time.Now())
	require.Error(t, err)
}

func TestExtractSkillURLs(t *testing.T) {
	html := `<html><body>
	  <a href="/acme/skills/deploy-helper">deploy-helper</a>
	  <a href="/acme/skills/deploy-helper/">trailing slash duplicate</a>
	  <a href="https://skills.sh/beta/tools/linter">linter</a>
	  <a href="https://other.example/owner/repo/skill">foreign host</a>
	  <a href="/trending">not a skill path</a>
	  <a href="/acme/skills/deploy-helper?tab=readme">query string duplicate</a>
	</body></html>`

	urls, err := ExtractSkillURLs("https://skills.sh/trending", html)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://skills.sh/acme/skills/deploy-helper",
		"https://skills.sh/beta/tools/linter",
	}, urls)
}
