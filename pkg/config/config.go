// Package config loads cmd/assistant's YAML configuration file and
// translates it into the per-package Config structs (audio, transcription,
// context, analysis, response) those packages already define (spec.md
// §15 external interfaces; grounded on the pack's YAML-config idiom, e.g.
// MrWong99-glyphoxa/internal/config.Load, since the teacher itself reads
// its settings from flat environment variables rather than a file).
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lokutor-ai/assist-core/pkg/analysis"
	"github.com/lokutor-ai/assist-core/pkg/audio"
	ctxstore "github.com/lokutor-ai/assist-core/pkg/context"
	"github.com/lokutor-ai/assist-core/pkg/response"
	"github.com/lokutor-ai/assist-core/pkg/transcription"
)

// App is the top-level YAML document cmd/assistant reads at startup.
type App struct {
	Audio struct {
		SampleRate  int    `yaml:"sample_rate"`
		Channels    int    `yaml:"channels"`
		ChunkMillis int    `yaml:"chunk_millis"`
		RingMaxSize int    `yaml:"ring_max_size"`
	} `yaml:"audio"`

	Transcription struct {
		Endpoint       string            `yaml:"endpoint"`
		Headers        map[string]string `yaml:"headers"`
		Language       string            `yaml:"language"`
		SpeakerSeparate bool             `yaml:"speaker_separation"`
		MaxRetries     int              `yaml:"max_retries"`
		BaseDelayMS    int              `yaml:"base_delay_ms"`
	} `yaml:"transcription"`

	Context struct {
		MaxEntries      int `yaml:"max_entries"`
		AutoArchive     bool `yaml:"auto_archive"`
		RetentionSecs   int  `yaml:"retention_seconds"`
	} `yaml:"context"`

	Analysis struct {
		MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`
		DefaultTimeoutSecs int `yaml:"default_timeout_seconds"`
	} `yaml:"analysis"`

	Response struct {
		MinConfidence float64 `yaml:"min_confidence"`
		MaxCandidates int     `yaml:"max_candidates"`
	} `yaml:"response"`

	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
	} `yaml:"llm"`

	Role string `yaml:"role"`
}

// Default returns an App populated with the same defaults each package's
// own DefaultConfig already carries, so an empty or partial YAML file
// still produces a working configuration.
func Default() *App {
	a := &App{}
	a.Audio.SampleRate = 16000
	a.Audio.Channels = 1
	a.Audio.ChunkMillis = 20
	a.Transcription.MaxRetries = 3
	a.Transcription.BaseDelayMS = 1000
	a.Context.MaxEntries = 10000
	a.Context.AutoArchive = true
	a.Analysis.MaxConcurrentTasks = 10
	a.Analysis.DefaultTimeoutSecs = 30
	a.Response.MinConfidence = 0.3
	a.Response.MaxCandidates = 3
	a.LLM.Provider = "openai"
	a.LLM.Model = "gpt-4o-mini"
	return a
}

// Load reads and decodes the YAML file at path over the package defaults.
// A missing file is not an error: Default() is returned as-is, matching
// cmd/assistant's "runs with no config file" convenience.
func Load(path string) (*App, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes YAML from r over the package defaults.
func LoadFromReader(r io.Reader) (*App, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// AudioConfig translates the YAML audio section into audio.Config.
func (a *App) AudioConfig() audio.Config {
	return audio.Config{
		SampleRate:  a.Audio.SampleRate,
		Channels:    a.Audio.Channels,
		ChunkMillis: a.Audio.ChunkMillis,
		Format:      audio.FormatPCM16,
	}
}

// TranscriptionConfig translates the YAML transcription section into
// transcription.Config.
func (a *App) TranscriptionConfig() transcription.Config {
	cfg := transcription.DefaultConfig()
	if a.Transcription.Language != "" {
		cfg.LanguageCode = a.Transcription.Language
	}
	cfg.EnableSpeakerSeparation = a.Transcription.SpeakerSeparate
	return cfg
}

// RetryPolicy translates the YAML transcription retry fields into
// transcription.RetryPolicy.
func (a *App) RetryPolicy() transcription.RetryPolicy {
	policy := transcription.DefaultRetryPolicy()
	if a.Transcription.MaxRetries > 0 {
		policy.MaxRetries = a.Transcription.MaxRetries
	}
	if a.Transcription.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(a.Transcription.BaseDelayMS) * time.Millisecond
	}
	return policy
}

// ContextStoreConfig translates the YAML context section into
// context.Config.
func (a *App) ContextStoreConfig() ctxstore.Config {
	cfg := ctxstore.DefaultConfig()
	if a.Context.MaxEntries > 0 {
		cfg.MaxEntries = a.Context.MaxEntries
	}
	cfg.AutoArchive = a.Context.AutoArchive
	if a.Context.RetentionSecs > 0 {
		cfg.RetentionPeriod = time.Duration(a.Context.RetentionSecs) * time.Second
	}
	return cfg
}

// AnalysisConfig translates the YAML analysis section into analysis.Config.
func (a *App) AnalysisConfig() analysis.Config {
	cfg := analysis.DefaultConfig()
	if a.Analysis.MaxConcurrentTasks > 0 {
		cfg.MaxConcurrentTasks = a.Analysis.MaxConcurrentTasks
	}
	if a.Analysis.DefaultTimeoutSecs > 0 {
		cfg.DefaultTimeout = time.Duration(a.Analysis.DefaultTimeoutSecs) * time.Second
	}
	return cfg
}

// ResponseConfig translates the YAML response section into response.Config.
func (a *App) ResponseConfig() response.Config {
	cfg := response.DefaultConfig()
	if a.Response.MinConfidence > 0 {
		cfg.MinConfidence = a.Response.MinConfidence
	}
	if a.Response.MaxCandidates > 0 {
		cfg.MaxCandidates = a.Response.MaxCandidates
	}
	return cfg
}

// StandardAnalysisPipeline builds the single-stage, all-six-analyzer
// pipeline cmd/assistant submits for every stable transcript (spec.md
// §4.8 example pipeline; every analyzer is independent so one parallel
// stage covers the default case).
func StandardAnalysisPipeline() analysis.Pipeline {
	types := []analysis.Type{
		analysis.TypeSentiment, analysis.TypeTopic, analysis.TypeQuality,
		analysis.TypeEngagement, analysis.TypeBehavioral, analysis.TypeCompliance,
	}
	tasks := make([]analysis.Task, 0, len(types))
	for _, t := range types {
		tasks = append(tasks, analysis.Task{ID: string(t), Type: t, Priority: analysis.PriorityMedium})
	}
	return analysis.Pipeline{
		Stages:         []analysis.Stage{{Tasks: tasks}},
		ParallelStages: true,
		ErrorHandling:  analysis.ErrorHandlingContinue,
	}
}
