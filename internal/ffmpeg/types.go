package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath     string
	Duration     time.Duration
	Size         int64
	FormatName   string
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	HasVideo     bool
	VideoCodec   string
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF          = 23
	DefaultPreset       = "fast"
	DefaultVideoCodec   = "libx264"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "128k"
	DefaultPixelFormat  = "yuv420p"
	DefaultSampleRate   = 44100
)

// EncodeSettings is the normalized target every clip and the final reel are encoded to.
type EncodeSettings struct {
	Width        int
	Height       int
	FPS          int
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
	CRF          int
	Preset       string
}

// withDefaults fills zero fields with the package defaults.
func (s EncodeSettings) withDefaults() EncodeSettings {
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = 1280, 720
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	if s.VideoCodec == "" {
		s.VideoCodec = DefaultVideoCodec
	}
	if s.AudioCodec == "" {
		s.AudioCodec = DefaultAudioCodec
	}
	if s.AudioBitrate == "" {
		s.AudioBitrate = DefaultAudioBitrate
	}
	if s.CRF == 0 {
		s.CRF = DefaultCRF
	}
	if s.Preset == "" {
		s.Preset = DefaultPreset
	}
	return s
}
