package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kikiluvv/reelcut/internal/ffmpeg"
	"github.com/kikiluvv/reelcut/internal/highlight"
	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/kikiluvv/reelcut/internal/scene"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Ranking strategies
const (
	StrategyScore = "score"
	StrategyLLM   = "llm"
)

// Remote downloaders
const (
	DownloaderYtDlp = "yt-dlp"
	DownloaderHTTP  = "http"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir   string `yaml:"work_dir"`
	OutputDir string `yaml:"output_dir"`

	Reel        ReelConfig        `yaml:"reel"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Encoding    EncodingConfig    `yaml:"encoding"`
	Ranking     RankingConfig     `yaml:"ranking"`
}

type ReelConfig struct {
	TopKPerSource  int     `yaml:"top_k_per_source"`
	MinLen         float64 `yaml:"min_len"`
	MaxLen         float64 `yaml:"max_len"`
	PadBefore      float64 `yaml:"pad_before"`
	Crossfade      float64 `yaml:"crossfade_seconds"`
	DedupThreshold int     `yaml:"dedup_hamming_threshold"`
	Chronological  bool    `yaml:"chronological"`
}

type AcquisitionConfig struct {
	Workers           int           `yaml:"workers"`
	Downloader        string        `yaml:"downloader"`
	YtDlpPath         string        `yaml:"ytdlp_path"`
	MaxSourceDuration float64       `yaml:"max_source_duration"`
	MaxSourceSize     int64         `yaml:"max_source_size"`
	Remux             bool          `yaml:"remux"`
	VerifyDecode      bool          `yaml:"verify_decode"`
	DownloadTimeout   time.Duration `yaml:"download_timeout"`
	HTTPRetries       int           `yaml:"http_retries"`
}

type AnalysisConfig struct {
	FPS    float64 `yaml:"fps"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`

	SceneThreshold float64 `yaml:"scene_threshold"`
	CutThreshold   float64 `yaml:"cut_threshold"`
	MinSceneLen    float64 `yaml:"min_scene_len"`
	MaxScenes      int     `yaml:"max_scenes"`

	MotionPixelThreshold int     `yaml:"motion_pixel_threshold"`
	ActiveThreshold      float64 `yaml:"active_threshold"`
	ExtendStep           float64 `yaml:"extend_step"`
	CooldownSteps        int     `yaml:"cooldown_steps"`
	SpikeProximity       float64 `yaml:"spike_proximity"`
	SpikeMultiplier      float64 `yaml:"spike_multiplier"`
	RMSWindow            float64 `yaml:"rms_window"`

	Weights highlight.Weights `yaml:"weights"`

	FallbackFloor float64 `yaml:"fallback_floor"`
	FallbackLen   float64 `yaml:"fallback_len"`

	// Zero threshold disables the dead-video check.
	DeadCheckSeconds    float64 `yaml:"dead_check_seconds"`
	DeadMotionThreshold float64 `yaml:"dead_motion_threshold"`

	SourceTimeout time.Duration `yaml:"source_timeout"`
}

type EncodingConfig struct {
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	FFprobePath     string        `yaml:"ffprobe_path"`
	Threads         int           `yaml:"threads"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	FPS             int           `yaml:"fps"`
	CRF             int           `yaml:"crf"`
	Preset          string        `yaml:"preset"`
	AudioBitrate    string        `yaml:"audio_bitrate"`
	ProcessTimeout  time.Duration `yaml:"process_timeout"`
	AssemblyTimeout time.Duration `yaml:"assembly_timeout"`
}

type RankingConfig struct {
	Strategy string `yaml:"strategy"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"-" env:"OPENAI_API_KEY"`
}

// Load reads configuration from file or returns defaults. Environment
// variables (and a .env file, when present) override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the pipeline cannot honor.
func (c *Config) Validate() error {
	r := c.Reel
	switch {
	case r.TopKPerSource < 1:
		return fmt.Errorf("reel.top_k_per_source must be at least 1, got %d", r.TopKPerSource)
	case r.MinLen <= 0:
		return fmt.Errorf("reel.min_len must be positive, got %g", r.MinLen)
	case r.MinLen > r.MaxLen:
		return fmt.Errorf("reel.min_len (%g) exceeds reel.max_len (%g)", r.MinLen, r.MaxLen)
	case r.PadBefore < 0:
		return fmt.Errorf("reel.pad_before must not be negative, got %g", r.PadBefore)
	case r.Crossfade < 0:
		return fmt.Errorf("reel.crossfade_seconds must not be negative, got %g", r.Crossfade)
	case r.DedupThreshold < 0 || r.DedupThreshold > 64:
		return fmt.Errorf("reel.dedup_hamming_threshold must be within 0..64, got %d", r.DedupThreshold)
	}

	a := c.Analysis
	if a.FPS <= 0 || a.Width <= 0 || a.Height <= 0 {
		return fmt.Errorf("analysis raster must be positive, got %dx%d at %g fps", a.Width, a.Height, a.FPS)
	}
	if a.RMSWindow <= 0 {
		return fmt.Errorf("analysis.rms_window must be positive, got %g", a.RMSWindow)
	}

	if c.Acquisition.Workers < 1 {
		return fmt.Errorf("acquisition.workers must be at least 1, got %d", c.Acquisition.Workers)
	}
	switch c.Acquisition.Downloader {
	case DownloaderYtDlp, DownloaderHTTP:
	default:
		return fmt.Errorf("unknown acquisition.downloader %q", c.Acquisition.Downloader)
	}

	switch c.Ranking.Strategy {
	case StrategyScore, StrategyLLM:
	default:
		return fmt.Errorf("unknown ranking.strategy %q", c.Ranking.Strategy)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkDir:   "./work",
		OutputDir: "./output",
		Reel: ReelConfig{
			TopKPerSource:  3,
			MinLen:         3,
			MaxLen:         12,
			PadBefore:      0.3,
			Crossfade:      0.5,
			DedupThreshold: 5,
		},
		Acquisition: AcquisitionConfig{
			Workers:           3,
			Downloader:        DownloaderYtDlp,
			YtDlpPath:         "yt-dlp",
			MaxSourceDuration: 1200,
			MaxSourceSize:     200 << 20,
			Remux:             true,
			DownloadTimeout:   10 * time.Minute,
			HTTPRetries:       3,
		},
		Analysis: AnalysisConfig{
			FPS:                  4,
			Width:                160,
			Height:               90,
			SceneThreshold:       60,
			CutThreshold:         40,
			MinSceneLen:          3,
			MaxScenes:            50,
			MotionPixelThreshold: 25,
			ActiveThreshold:      5,
			ExtendStep:           0.5,
			CooldownSteps:        3,
			SpikeProximity:       0.5,
			SpikeMultiplier:      1.8,
			RMSWindow:            0.5,
			Weights:              highlight.DefaultWeights(),
			FallbackFloor:        2,
			FallbackLen:          5,
			DeadCheckSeconds:     10,
			SourceTimeout:        5 * time.Minute,
		},
		Encoding: EncodingConfig{
			Width:           1280,
			Height:          720,
			FPS:             30,
			CRF:             ffmpeg.DefaultCRF,
			Preset:          ffmpeg.DefaultPreset,
			AudioBitrate:    ffmpeg.DefaultAudioBitrate,
			ProcessTimeout:  10 * time.Minute,
			AssemblyTimeout: 15 * time.Minute,
		},
		Ranking: RankingConfig{
			Strategy: StrategyScore,
		},
	}
}

func (c *Config) applyEnv() {
	c.WorkDir = getEnv("REELCUT_WORK_DIR", c.WorkDir)
	c.OutputDir = getEnv("REELCUT_OUTPUT_DIR", c.OutputDir)
	c.Acquisition.YtDlpPath = getEnv("REELCUT_YTDLP_PATH", c.Acquisition.YtDlpPath)
	c.Acquisition.Workers = getEnvInt("REELCUT_WORKERS", c.Acquisition.Workers)
	c.Ranking.APIKey = getEnv("OPENAI_API_KEY", c.Ranking.APIKey)
	c.Ranking.Model = getEnv("REELCUT_LLM_MODEL", c.Ranking.Model)
	c.Ranking.BaseURL = getEnv("REELCUT_LLM_BASE_URL", c.Ranking.BaseURL)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func findConfigFile() string {
	candidates := []string{
		"./reelcut.yaml",
		"./config.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".reelcut", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SceneConfig maps the analysis section onto the segmenter.
func (c *Config) SceneConfig() scene.Config {
	return scene.Config{
		Threshold:    c.Analysis.SceneThreshold,
		CutThreshold: c.Analysis.CutThreshold,
		MinSceneLen:  c.Analysis.MinSceneLen,
		MaxScenes:    c.Analysis.MaxScenes,
	}
}

func (c *Config) ScorerConfig() highlight.Config {
	return highlight.Config{
		MinLen:          c.Reel.MinLen,
		MaxLen:          c.Reel.MaxLen,
		PadBefore:       c.Reel.PadBefore,
		PixelThreshold:  c.Analysis.MotionPixelThreshold,
		ActiveThreshold: c.Analysis.ActiveThreshold,
		ExtendStep:      c.Analysis.ExtendStep,
		CooldownSteps:   c.Analysis.CooldownSteps,
		SpikeProximity:  c.Analysis.SpikeProximity,
		Weights:         c.Analysis.Weights,
	}
}

func (c *Config) SelectorConfig() highlight.SelectorConfig {
	return highlight.SelectorConfig{
		FallbackFloor: c.Analysis.FallbackFloor,
		FallbackLen:   c.Analysis.FallbackLen,
		Chronological: c.Reel.Chronological,
	}
}

func (c *Config) LLMConfig() highlight.LLMConfig {
	return highlight.LLMConfig{
		APIKey:  c.Ranking.APIKey,
		Model:   c.Ranking.Model,
		BaseURL: c.Ranking.BaseURL,
	}
}

// MediaConfig maps the acquisition section onto the acquirer.
func (c *Config) MediaConfig() media.Config {
	return media.Config{
		MaxDuration:  c.Acquisition.MaxSourceDuration,
		MaxSize:      c.Acquisition.MaxSourceSize,
		Remux:        c.Acquisition.Remux,
		VerifyDecode: c.Acquisition.VerifyDecode,
		Timeout:      c.Acquisition.DownloadTimeout,
	}
}

func (c *Config) FFmpegOptions() ffmpeg.Options {
	return ffmpeg.Options{
		FFmpegPath:  c.Encoding.FFmpegPath,
		FFprobePath: c.Encoding.FFprobePath,
		Threads:     c.Encoding.Threads,
		Timeout:     c.Encoding.ProcessTimeout,
	}
}

func (c *Config) GrayOptions() ffmpeg.GrayOptions {
	return ffmpeg.GrayOptions{
		FPS:    c.Analysis.FPS,
		Width:  c.Analysis.Width,
		Height: c.Analysis.Height,
	}
}

func (c *Config) EncodeSettings() ffmpeg.EncodeSettings {
	return ffmpeg.EncodeSettings{
		Width:        c.Encoding.Width,
		Height:       c.Encoding.Height,
		FPS:          c.Encoding.FPS,
		AudioBitrate: c.Encoding.AudioBitrate,
		CRF:          c.Encoding.CRF,
		Preset:       c.Encoding.Preset,
	}
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
