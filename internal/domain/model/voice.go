package model

import (
	"path/filepath"
	"strings"
)

// Voice is a reference speaker available for synthesis.
type Voice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RefTextFile  string `json:"ref_text_file"`
	RefAudioFile string `json:"ref_audio_file"`
	// Filesystem locations are never serialized.
	Dir          string `json:"-"`
	RefTextPath  string `json:"-"`
	RefAudioPath string `json:"-"`
}

// AudioMimeType returns the media type of the reference clip.
func (v *Voice) AudioMimeType() string {
	return MimeTypeForExtension(v.RefAudioFile)
}

// MimeTypeForExtension maps an audio filename to its media type.
func MimeTypeForExtension(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
