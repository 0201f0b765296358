package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"
	"unicode/utf8"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/domain/model"
)

const (
	toneSampleRate  = 24000
	tonePerRune     = 60 * time.Millisecond
	toneMinDuration = 200 * time.Millisecond
	toneMaxDuration = 30 * time.Second

	// MPEG-1 Layer III, 128 kbit/s, 44.1 kHz, mono, no padding.
	mp3FrameSize    = 417
	mp3FrameSamples = 1152
	mp3SampleRate   = 44100
)

var mp3FrameHeader = [4]byte{0xFF, 0xFB, 0x90, 0xC0}

// ToneEngine is a deterministic engine for development and tests. WAV output is a
// sine tone whose pitch depends on the voice and seed; MP3 output is silent frames.
// Output length scales with text length divided by speed.
type ToneEngine struct {
	// Delay simulates inference latency. It honours context cancellation.
	Delay time.Duration
}

// NewToneEngine creates a ToneEngine.
func NewToneEngine(delay time.Duration) *ToneEngine {
	return &ToneEngine{Delay: delay}
}

// Name implements core.SynthesisEngine.
func (e *ToneEngine) Name() string { return "tone" }

// Synthesize implements core.SynthesisEngine.
func (e *ToneEngine) Synthesize(ctx context.Context, in core.SynthesisInput) ([]byte, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	duration := ToneDuration(in.Params.Text, in.Params.Speed)
	if in.Params.Format == model.AudioFormatWAV {
		voiceID := ""
		if in.Voice != nil {
			voiceID = in.Voice.ID
		}
		return sineWAV(duration, toneFrequency(voiceID, in.Params.Seed)), nil
	}
	return silentMP3(duration), nil
}

// ToneDuration is the length of audio produced for text at speed.
func ToneDuration(text string, speed float64) time.Duration {
	if speed <= 0 {
		speed = model.DefaultSpeed
	}
	d := time.Duration(float64(utf8.RuneCountInString(text)) * float64(tonePerRune) / speed)
	return min(max(d, toneMinDuration), toneMaxDuration)
}

func toneFrequency(voiceID string, seed int64) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(voiceID))
	base := 180 + float64(h.Sum32()%220)
	if seed >= 0 {
		base += float64(seed % 40)
	}
	return base
}

func sineWAV(duration time.Duration, freq float64) []byte {
	samples := int(duration.Seconds() * toneSampleRate)
	dataLen := samples * 2

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(buf, binary.LittleEndian, uint32(toneSampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(toneSampleRate*2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))

	sample := make([]byte, 2)
	for i := range samples {
		v := 0.3 * math.Sin(2*math.Pi*freq*float64(i)/toneSampleRate)
		binary.LittleEndian.PutUint16(sample, uint16(int16(v*math.MaxInt16)))
		buf.Write(sample)
	}
	return buf.Bytes()
}

func silentMP3(duration time.Duration) []byte {
	frames := max(1, int(math.Ceil(duration.Seconds()*mp3SampleRate/mp3FrameSamples)))
	out := make([]byte, frames*mp3FrameSize)
	for i := range frames {
		copy(out[i*mp3FrameSize:], mp3FrameHeader[:])
	}
	return out
}

var _ core.SynthesisEngine = (*ToneEngine)(nil)
