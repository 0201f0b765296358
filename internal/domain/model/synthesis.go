package model

import (
	"net/url"
	"strings"
	"unicode/utf8"

	apperrors "github.com/espeech/espeech-api/internal/errors"
)

// AudioFormat is the container format of synthesized audio.
type AudioFormat string

const (
	// AudioFormatWAV is 16-bit PCM RIFF/WAVE.
	AudioFormatWAV AudioFormat = "wav"
	// AudioFormatMP3 is MPEG-1 Layer III.
	AudioFormatMP3 AudioFormat = "mp3"
)

// Parameter bounds and defaults.
const (
	MinSpeed       = 0.5
	MaxSpeed       = 2.0
	DefaultSpeed   = 1.0
	MinNFEStep     = 8
	MaxNFEStep     = 128
	DefaultNFEStep = 71
	RandomSeed     = int64(-1)
	DefaultFormat  = AudioFormatMP3
)

// Valid returns true if the AudioFormat is supported.
func (f AudioFormat) Valid() bool {
	return f == AudioFormatWAV || f == AudioFormatMP3
}

// MimeType returns the media type for f.
func (f AudioFormat) MimeType() string {
	if f == AudioFormatWAV {
		return "audio/wav"
	}
	return "audio/mpeg"
}

// Extension returns the file extension for f without the dot.
func (f AudioFormat) Extension() string {
	return string(f)
}

// SynthesisRequest is the client-facing request body for both the async and the stream endpoints.
// Optional fields are pointers so omitted values can be told apart from zero values.
type SynthesisRequest struct {
	VoiceID     string   `json:"voice_id"`
	Text        string   `json:"text"`
	Speed       *float64 `json:"speed,omitempty"`
	NFEStep     *int     `json:"nfe_step,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	Format      string   `json:"format,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// SynthesisParams are validated parameters with defaults applied.
type SynthesisParams struct {
	VoiceID     string      `json:"voice_id"`
	Text        string      `json:"text"`
	Speed       float64     `json:"speed"`
	NFEStep     int         `json:"nfe_step"`
	Seed        int64       `json:"seed"`
	Format      AudioFormat `json:"format"`
	CallbackURL string      `json:"callback_url,omitempty"`
}

// SynthesisDefaults carries deployment-level defaults and limits used by Normalize.
type SynthesisDefaults struct {
	NFEStep       int
	MaxTextLength int
}

// Normalize validates r and returns parameters with defaults applied.
// Validation failures are returned as field-scoped validation errors.
func (r *SynthesisRequest) Normalize(defaults SynthesisDefaults) (SynthesisParams, error) {
	p := SynthesisParams{
		VoiceID:     strings.TrimSpace(r.VoiceID),
		Text:        strings.TrimSpace(r.Text),
		Speed:       DefaultSpeed,
		NFEStep:     defaults.NFEStep,
		Seed:        RandomSeed,
		Format:      DefaultFormat,
		CallbackURL: strings.TrimSpace(r.CallbackURL),
	}
	if p.NFEStep == 0 {
		p.NFEStep = DefaultNFEStep
	}

	if p.VoiceID == "" {
		return p, apperrors.ValidationField("voice_id", "voice_id is required")
	}
	if p.Text == "" {
		return p, apperrors.ValidationField("text", "text is required")
	}
	if defaults.MaxTextLength > 0 && utf8.RuneCountInString(p.Text) > defaults.MaxTextLength {
		return p, apperrors.ValidationField("text", "text is too long")
	}

	if r.Speed != nil {
		if *r.Speed < MinSpeed || *r.Speed > MaxSpeed {
			return p, apperrors.ValidationField("speed", "speed must be between 0.5 and 2.0")
		}
		p.Speed = *r.Speed
	}
	if r.NFEStep != nil {
		if *r.NFEStep < MinNFEStep || *r.NFEStep > MaxNFEStep {
			return p, apperrors.ValidationField("nfe_step", "nfe_step must be between 8 and 128")
		}
		p.NFEStep = *r.NFEStep
	}
	if r.Seed != nil {
		if *r.Seed < RandomSeed {
			return p, apperrors.ValidationField("seed", "seed must be -1 (random) or non-negative")
		}
		p.Seed = *r.Seed
	}
	if f := strings.TrimSpace(r.Format); f != "" {
		format := AudioFormat(strings.ToLower(f))
		if !format.Valid() {
			return p, apperrors.ValidationField("format", "format must be wav or mp3")
		}
		p.Format = format
	}
	if p.CallbackURL != "" {
		if err := validateCallbackURL(p.CallbackURL); err != nil {
			return p, err
		}
	}

	return p, nil
}

func validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperrors.ValidationField("callback_url", "callback_url must be an absolute http(s) URL")
	}
	return nil
}
