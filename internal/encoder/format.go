package encoder

import (
	"path/filepath"
	"strings"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
)

// Format describes how an output file is encoded and terminated.
type Format struct {
	Name      string           // short name for logs and the UI
	Codec     ffmpeg.AVCodecID // encoder selected by codec id
	Muxed     bool             // written through libavformat
	EndMarker []byte           // appended by RawWriter on Finalize
}

var (
	// H.264 in a container; the muxer writes the trailer.
	FormatMP4      = Format{Name: "mp4", Codec: ffmpeg.AVCodecIdH264, Muxed: true}
	FormatMOV      = Format{Name: "mov", Codec: ffmpeg.AVCodecIdH264, Muxed: true}
	FormatMatroska = Format{Name: "matroska", Codec: ffmpeg.AVCodecIdH264, Muxed: true}

	// FormatMPEG1 is a raw MPEG-1 video elementary stream ending in the
	// sequence end code.
	FormatMPEG1 = Format{Name: "mpeg1video", Codec: ffmpeg.AVCodecIdMpeg1Video, EndMarker: []byte{0, 0, 1, 0xb7}}

	// FormatH264 is a raw Annex B stream ending in an end of stream NAL unit.
	FormatH264 = Format{Name: "h264", Codec: ffmpeg.AVCodecIdH264, EndMarker: []byte{0, 0, 0, 1, 0x0b}}
)

var formatsByExt = map[string]Format{
	".mp4":  FormatMP4,
	".mov":  FormatMOV,
	".mkv":  FormatMatroska,
	".mpg":  FormatMPEG1,
	".mpeg": FormatMPEG1,
	".m1v":  FormatMPEG1,
	".h264": FormatH264,
	".264":  FormatH264,
}

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := formatsByExt[ext]; ok {
		return f, nil
	}
	if ext == "" {
		return Format{}, apperrors.Configurationf("output %q has no file extension; use .mp4, .mov, .mkv, .mpg or .h264", path)
	}
	return Format{}, apperrors.Configurationf("unsupported output format %q; use .mp4, .mov, .mkv, .mpg or .h264", ext)
}
