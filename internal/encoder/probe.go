package encoder

import (
	"errors"
	"fmt"
	"time"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"
)

// StreamInfo is what a decoder reports about a finished recording.
type StreamInfo struct {
	Duration time.Duration // container duration, zero when unknown
	Packets  int           // video packets, one per encoded frame
	Width    int
	Height   int
}

// Probe opens path for reading and counts its video packets.
func Probe(path string) (StreamInfo, error) {
	restore := silenceLogs()
	defer restore()

	input := ffmpeg.ToCStr(path)
	defer input.Free()

	var ctx *ffmpeg.AVFormatContext
	if _, err := ffmpeg.AVFormatOpenInput(&ctx, input, nil, nil); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ffmpeg.AVFormatCloseInput(&ctx)

	if _, err := ffmpeg.AVFormatFindStreamInfo(ctx, nil); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to read stream info: %w", err)
	}

	info := StreamInfo{}
	videoIdx := -1
	streams := ctx.Streams()
	for i := uintptr(0); i < uintptr(ctx.NbStreams()); i++ {
		par := streams.Get(i).Codecpar()
		if par.CodecType() == ffmpeg.AVMediaTypeVideo {
			videoIdx = int(i)
			info.Width = par.Width()
			info.Height = par.Height()
			break
		}
	}
	if videoIdx == -1 {
		return StreamInfo{}, errors.New("no video stream found")
	}

	if d := ctx.Duration(); d > 0 {
		info.Duration = time.Duration(d) * time.Microsecond
	}

	pkt := ffmpeg.AVPacketAlloc()
	defer ffmpeg.AVPacketFree(&pkt)
	for {
		if _, err := ffmpeg.AVReadFrame(ctx, pkt); err != nil {
			if errors.Is(err, ffmpeg.AVErrorEOF) {
				break
			}
			return info, fmt.Errorf("failed to read packet: %w", err)
		}
		if pkt.StreamIndex() == videoIdx {
			info.Packets++
		}
		ffmpeg.AVPacketUnref(pkt)
	}
	return info, nil
}
