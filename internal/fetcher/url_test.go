package fetcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRepositoryURL(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "shorthand", input: "acme/skills", wantOwner: "acme", wantRepo: "skills"},
		{name: "https", input: "https://github.com/acme/skills", wantOwner: "acme", wantRepo: "skills"},
		{name: "https with .git", input: "https://github.com/acme/skills.git", wantOwner: "acme", wantRepo: "skills"},
		{name: "https with extra path", input: "https://github.com/acme/skills/tree/main/deploy", wantOwner: "acme", wantRepo: "skills"},
		{name: "ssh", input: "git@github.com:acme/skills.git", wantOwner: "acme", wantRepo: "skills"},
		{name: "whitespace trimmed", input: "  acme/skills  ", wantOwner: "acme", wantRepo: "skills"},
		{name: "empty", input: "", wantErr: true},
		{name: "bare name", input: "skills", wantErr: true},
		{name: "too many shorthand parts", input: "a/b/c", wantErr: true},
		{name: "non-github host", input: "https://gitlab.com/acme/skills", wantErr: true},
		{name: "invalid owner chars", input: "ac me/skills", wantErr: true},
		{name: "leading hyphen", input: "-acme/skills", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepositoryURL(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOwner, owner)
			require.Equal(t, tt.wantRepo, repo)
		})
	}
}
