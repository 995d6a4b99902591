package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/fetcher"
	"github.com/skillens/skillens/internal/log"
	"github.com/skillens/skillens/internal/models"
)

// Config holds orchestrator settings.
type Config struct {
	AnalysisVersion string
	ArtifactsDir    string
}

// Orchestrator handles analyze jobs: it runs the analyzer suite over an
// artifact snapshot and writes the combined result.
type Orchestrator struct {
	db        *db.DB
	validator *Validator
	parser    *fetcher.ManifestParser
	cfg       Config
}

// NewOrchestrator creates an orchestrator. The validator is optional;
// nil disables the LLM pass.
func NewOrchestrator(database *db.DB, validator *Validator, cfg Config) *Orchestrator {
	return &Orchestrator{
		db:        database,
		validator: validator,
		parser:    fetcher.NewManifestParser(),
		cfg:       cfg,
	}
}

// Handle executes one analyze job. The analysis row is keyed by
// (artifact, analysis_version): re-running replaces the previous result
// for that pair rather than appending a new row.
func (o *Orchestrator) Handle(ctx context.Context, job *models.AnalysisJob) error {
	if job.ArtifactID == nil {
		return fmt.Errorf("analyze job %s has no artifact_id", job.ID)
	}
	artifact, err := o.db.GetArtifact(*job.ArtifactID)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	if artifact == nil {
		return fmt.Errorf("artifact %s not found", *job.ArtifactID)
	}

	version := o.cfg.AnalysisVersion
	if job.Payload.AnalysisVersion != "" {
		version = job.Payload.AnalysisVersion
	}

	analysis, err := o.db.EnsureAnalysis(artifact, version)
	if err != nil {
		return fmt.Errorf("ensure analysis: %w", err)
	}

	result, runErr := o.analyze(ctx, artifact)
	if runErr != nil {
		if failErr := o.db.FailAnalysis(analysis.ID, runErr); failErr != nil {
			log.L().Error("record analysis failure", zap.Error(failErr))
		}
		return runErr
	}

	if err := o.db.CompleteAnalysis(analysis.ID, result); err != nil {
		return fmt.Errorf("complete analysis: %w", err)
	}

	log.L().Info("analysis complete",
		zap.String("analysis_id", analysis.ID),
		zap.String("artifact_id", artifact.ID),
		zap.Float64("overall_score", result.OverallScore),
		zap.String("trust_badge", result.TrustBadge))
	return nil
}

// analyze runs every analyzer over the artifact's stored files.
func (o *Orchestrator) analyze(ctx context.Context, artifact *models.SkillArtifact) (*db.AnalysisResult, error) {
	files, skillMD, err := o.loadFiles(artifact)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("artifact %s has no readable files", artifact.ID)
	}

	scan := ScanSecurity(files)

	var (
		validated       []ValidatedFinding
		securitySummary string
		llmUsed         bool
		llmModel        string
	)
	if o.validator != nil && ShouldValidate(scan.Findings, scan.RiskScore) {
		llmUsed = true
		llmModel = o.validator.modelFor(scan.Findings)
		validation, valErr := o.validator.Validate(ctx, scan.Findings, BuildContextSnippets(files, scan.Findings))
		if valErr != nil {
			// Rules-only results still ship when the model pass fails.
			log.L().Warn("llm validation failed", zap.Error(valErr))
			llmUsed = false
			llmModel = ""
		} else {
			validated = validation.ValidatedFindings
			securitySummary = validation.SecuritySummary
		}
	}

	behavior := AnalyzeBehavior(scan.Capabilities)

	meta := QualityMeta{}
	if skillMD != "" {
		if parsed, metaErr := o.parser.ParseMeta(skillMD); metaErr == nil {
			meta = QualityMeta{
				Name:        parsed.Name,
				Description: parsed.Description,
				Version:     parsed.Version,
				License:     parsed.License,
			}
		}
	}
	quality := AnalyzeQuality(meta, skillMD, len(files))

	deps := AnalyzeDependencies(files)

	security := SecurityData{
		Findings:          scan.Findings,
		ValidatedFindings: validated,
		SecuritySummary:   securitySummary,
		UserExplanation:   buildUserExplanation(scan, validated, securitySummary, behavior),
		RiskScore:         scan.RiskScore,
		TrustBadge:        scan.TrustBadge,
		Capabilities:      scan.Capabilities,
		LLMUsed:           llmUsed,
		LLMModel:          llmModel,
		AnalyzedAt:        time.Now().UTC().Truncate(time.Second),
	}
	if security.ValidatedFindings == nil {
		security.ValidatedFindings = []ValidatedFinding{}
	}

	securityJSON, err := json.Marshal(security)
	if err != nil {
		return nil, fmt.Errorf("marshal security data: %w", err)
	}
	qualityJSON, err := json.Marshal(quality)
	if err != nil {
		return nil, fmt.Errorf("marshal quality data: %w", err)
	}
	behaviorJSON, err := json.Marshal(behavior)
	if err != nil {
		return nil, fmt.Errorf("marshal behavior data: %w", err)
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return nil, fmt.Errorf("marshal dependency data: %w", err)
	}

	return &db.AnalysisResult{
		OverallScore:   OverallScore(scan.RiskScore),
		TrustBadge:     scan.TrustBadge,
		SecurityData:   securityJSON,
		QualityData:    qualityJSON,
		BehaviorData:   behaviorJSON,
		DependencyData: depsJSON,
	}, nil
}

// loadFiles reads the artifact's stored files into scanner input, also
// returning the SKILL.md text for the quality analyzer.
func (o *Orchestrator) loadFiles(artifact *models.SkillArtifact) ([]ScannedFile, string, error) {
	var (
		files   []ScannedFile
		skillMD string
	)
	for _, entry := range artifact.FilesManifest {
		if entry.StorageKey == "" {
			continue
		}
		text, err := fetcher.ReadArtifactFile(o.cfg.ArtifactsDir, artifact, entry)
		if err != nil {
			log.L().Warn("skip unreadable artifact file",
				zap.String("path", entry.Path), zap.Error(err))
			continue
		}
		files = append(files, ScannedFile{Path: entry.Path, Text: text})
		if entry.Path == artifact.SkillMDPath {
			skillMD = text
		}
	}
	return files, skillMD, nil
}
