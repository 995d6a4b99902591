package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/hash"
	"github.com/skillens/skillens/internal/log"
	"github.com/skillens/skillens/internal/models"
)

// MaxManifestFiles caps how many referenced files one artifact captures.
const MaxManifestFiles = 50

// Config holds fetcher settings.
type Config struct {
	ParseVersion string
	ArtifactsDir string
}

// Fetcher handles fetch_artifacts jobs: retrieve current skill content,
// hash it, and record a new artifact version when the content changed.
type Fetcher struct {
	db     *db.DB
	client Client
	parser *ManifestParser
	cfg    Config
}

// New creates a fetcher backed by the given repository client.
func New(database *db.DB, client Client, cfg Config) *Fetcher {
	return &Fetcher{
		db:     database,
		client: client,
		parser: NewManifestParser(),
		cfg:    cfg,
	}
}

// Handle executes one fetch_artifacts job. The whole flow is idempotent:
// a retried job converges on the same artifact row because inserts are
// keyed by (skill, artifact_hash, parse_version).
func (f *Fetcher) Handle(ctx context.Context, job *models.AnalysisJob) error {
	if job.SkillID == nil {
		return fmt.Errorf("fetch job %s has no skill_id", job.ID)
	}
	skill, err := f.db.GetSkill(*job.SkillID)
	if err != nil {
		return fmt.Errorf("load skill: %w", err)
	}
	if skill == nil {
		return fmt.Errorf("skill %s not found", *job.SkillID)
	}
	if skill.RepositoryURL == "" {
		return fmt.Errorf("skill %s has no repository URL", skill.ID)
	}

	owner, repo, err := ParseRepositoryURL(skill.RepositoryURL)
	if err != nil {
		return fmt.Errorf("parse repository URL: %w", err)
	}

	src, err := f.db.EnsureRepoSource(&models.RepoSource{
		RepositoryURL: skill.RepositoryURL,
		Provider:      "github",
		Owner:         owner,
		Repo:          repo,
	})
	if err != nil {
		return fmt.Errorf("ensure repo source: %w", err)
	}
	if err := f.db.MarkRepoSourceRunning(src.ID); err != nil {
		return fmt.Errorf("mark repo source running: %w", err)
	}

	artifact, fetchErr := f.fetchArtifact(ctx, skill, src, owner, repo)
	if fetchErr != nil {
		if markErr := f.db.MarkRepoSourceFailed(src.ID, fetchErr); markErr != nil {
			log.L().Error("record repo source failure", zap.Error(markErr))
		}
		return fetchErr
	}

	if err := f.db.MarkRepoSourceDone(src.ID, artifact.defaultBranch); err != nil {
		return fmt.Errorf("mark repo source done: %w", err)
	}

	if artifact.unchanged {
		if err := f.db.TouchArtifactFetched(artifact.latestID); err != nil {
			return fmt.Errorf("touch artifact: %w", err)
		}
		log.L().Info("artifact unchanged",
			zap.String("skill_id", skill.ID),
			zap.String("artifact_hash", artifact.hash))
		return nil
	}

	stored, err := f.db.InsertArtifact(artifact.row)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}

	_, err = f.db.EnqueueJob(&models.AnalysisJob{
		JobType:      models.JobTypeAnalyze,
		SkillID:      &skill.ID,
		RepoSourceID: &src.ID,
		ArtifactID:   &stored.ID,
	})
	if err != nil && err != db.ErrAlreadyQueued {
		return fmt.Errorf("enqueue analyze job: %w", err)
	}

	log.L().Info("artifact created",
		zap.String("skill_id", skill.ID),
		zap.String("artifact_id", stored.ID),
		zap.String("artifact_hash", stored.ArtifactHash))
	return nil
}

// fetchResult carries fetchArtifact's outcome.
type fetchResult struct {
	row           *models.SkillArtifact
	hash          string
	defaultBranch string
	unchanged     bool
	latestID      string
}

// fetchArtifact retrieves content, computes the artifact hash, and
// decides whether a new snapshot is needed.
func (f *Fetcher) fetchArtifact(ctx context.Context, skill *models.Skill, src *models.RepoSource, owner, repo string) (*fetchResult, error) {
	tree, err := f.client.GetRepoTree(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetch tree: %w", err)
	}

	treePaths := make(map[string]bool, len(tree.Entries))
	entryByPath := make(map[string]TreeEntry, len(tree.Entries))
	for _, entry := range tree.Entries {
		treePaths[entry.Path] = true
		entryByPath[entry.Path] = entry
	}

	skillMDPath := LocateSkillMD(treePaths, skill.SkillSlug, 1)
	if skillMDPath == "" {
		return nil, fmt.Errorf("could not locate SKILL.md for slug %s in %s/%s", skill.SkillSlug, owner, repo)
	}

	skillMD, err := f.client.GetFileContent(ctx, owner, repo, skillMDPath, tree.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("fetch SKILL.md: %w", err)
	}

	paths := f.selectFiles(skillMD, owner, repo, skillMDPath, treePaths, entryByPath)

	manifest := []models.FileManifestEntry{{
		Path:        skillMDPath,
		SHA:         entryByPath[skillMDPath].SHA,
		Size:        int64(len(skillMD)),
		ContentHash: hash.SHA256Text(skillMD),
	}}
	contents := map[string]string{skillMDPath: skillMD}

	for _, p := range paths {
		entry := entryByPath[p]
		if entry.Size > MaxFileSizeBytes {
			continue
		}
		content, err := f.client.GetFileContent(ctx, owner, repo, p, tree.DefaultBranch)
		if err != nil {
			// A single unreadable referenced file does not sink the
			// snapshot; the manifest simply omits it.
			log.L().Warn("skip unreadable file",
				zap.String("path", p), zap.Error(err))
			continue
		}
		if strings.ContainsRune(content, '\x00') {
			continue
		}
		manifest = append(manifest, models.FileManifestEntry{
			Path:        p,
			SHA:         entry.SHA,
			Size:        int64(len(content)),
			ContentHash: hash.SHA256Text(content),
		})
		contents[p] = content
	}

	hashEntries := make([]hash.ManifestEntry, 0, len(manifest))
	for _, m := range manifest {
		hashEntries = append(hashEntries, hash.ManifestEntry{Path: m.Path, Hash: m.ContentHash})
	}
	artifactHash := hash.ArtifactHash(hashEntries)

	latest, err := f.db.LatestArtifact(skill.ID, f.cfg.ParseVersion)
	if err != nil {
		return nil, fmt.Errorf("load latest artifact: %w", err)
	}
	if latest != nil && latest.ArtifactHash == artifactHash {
		return &fetchResult{
			hash:          artifactHash,
			defaultBranch: tree.DefaultBranch,
			unchanged:     true,
			latestID:      latest.ID,
		}, nil
	}

	storagePrefix := filepath.Join(skill.ID, artifactHash[:hash.IDLength])
	for i := range manifest {
		key := manifest[i].Path
		if err := f.writeFile(storagePrefix, key, contents[manifest[i].Path]); err != nil {
			return nil, fmt.Errorf("store file %s: %w", manifest[i].Path, err)
		}
		manifest[i].StorageKey = key
	}

	return &fetchResult{
		row: &models.SkillArtifact{
			SkillID:       skill.ID,
			RepoSourceID:  &src.ID,
			ParseVersion:  f.cfg.ParseVersion,
			ArtifactHash:  artifactHash,
			SkillMDPath:   skillMDPath,
			StoragePrefix: storagePrefix,
			FilesManifest: manifest,
			FetchStatus:   models.FetchStatusDone,
		},
		hash:          artifactHash,
		defaultBranch: tree.DefaultBranch,
	}, nil
}

// selectFiles returns the referenced paths present in the tree, falling
// back to a heuristic sweep of the skill directory when SKILL.md
// references nothing usable.
func (f *Fetcher) selectFiles(skillMD, owner, repo, skillMDPath string, treePaths map[string]bool, entryByPath map[string]TreeEntry) []string {
	referenced := ExtractReferencedPaths(skillMD, owner, repo, skillMDPath)

	var selected []string
	for _, p := range referenced {
		if treePaths[p] && !isExcludedPath(p) {
			selected = append(selected, p)
		}
	}
	if len(selected) == 0 {
		selected = heuristicPaths(skillMDPath, entryByPath)
	}
	if len(selected) > MaxManifestFiles {
		selected = selected[:MaxManifestFiles]
	}
	return selected
}

// heuristicPaths collects capturable files under the skill's directory.
func heuristicPaths(skillMDPath string, entryByPath map[string]TreeEntry) []string {
	skillDir := filepath.ToSlash(filepath.Dir(skillMDPath))
	if skillDir == "." {
		skillDir = ""
	}

	var result []string
	for p := range entryByPath {
		if p == skillMDPath || isExcludedPath(p) || !hasAllowedExtension(p) {
			continue
		}
		if skillDir != "" && !strings.HasPrefix(p, skillDir+"/") {
			continue
		}
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// writeFile stores one captured file under the artifacts directory,
// refusing path escapes.
func (f *Fetcher) writeFile(storagePrefix, key, content string) error {
	cleaned := filepath.Clean(key)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return fmt.Errorf("unsafe storage key: %s", key)
	}
	dest := filepath.Join(f.cfg.ArtifactsDir, storagePrefix, cleaned)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(content), 0644)
}

// ReadArtifactFile loads one stored file for an artifact.
func ReadArtifactFile(artifactsDir string, artifact *models.SkillArtifact, entry models.FileManifestEntry) (string, error) {
	data, err := os.ReadFile(filepath.Join(artifactsDir, artifact.StoragePrefix, filepath.Clean(entry.StorageKey)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
