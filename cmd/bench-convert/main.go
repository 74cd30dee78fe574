// bench-convert times the RGB to YUV420P colour converters on a synthetic
// frame. It is meant to be driven by hyperfine.
//
// Usage:
//
//	bench-convert [--iterations N] [--impl go|swscale] [--format rgba|rgb24]
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/linuxmatters/lapse/internal/capture"
	"github.com/linuxmatters/lapse/internal/cli"
	"github.com/linuxmatters/lapse/internal/encoder"
	"github.com/linuxmatters/lapse/internal/media"
)

var args struct {
	Iterations int    `help:"Number of conversions to perform" default:"1000"`
	Impl       string `help:"Implementation: go or swscale" enum:"go,swscale" default:"go"`
	Format     string `help:"Source pixel format: rgba or rgb24" enum:"rgba,rgb24" default:"rgba"`
	Width      int    `help:"Frame width" default:"1920"`
	Height     int    `help:"Frame height" default:"1080"`
}

func main() {
	kong.Parse(&args,
		kong.Name("bench-convert"),
		kong.Description("Benchmark the RGB to YUV420P converters."),
		kong.UsageOnError(),
	)

	format := capture.RGBA
	if args.Format == "rgb24" {
		format = capture.RGB24
	}

	raw := syntheticFrame(args.Width, args.Height, format)
	dst := media.NewFrame(args.Width, args.Height)

	var conv media.Converter
	if args.Impl == "swscale" {
		c, err := encoder.NewSwsConverter(args.Width, args.Height, format)
		if err != nil {
			cli.PrintError(err.Error())
			os.Exit(1)
		}
		conv = c
	} else {
		conv = media.NewGoConverter()
	}
	defer conv.Close()

	start := time.Now()
	for i := 0; i < args.Iterations; i++ {
		if err := conv.Convert(raw, dst); err != nil {
			cli.PrintError(err.Error())
			os.Exit(1)
		}
	}
	elapsed := time.Since(start)

	perFrame := elapsed / time.Duration(max(args.Iterations, 1))
	fmt.Printf("%s %s %dx%d: %d conversions in %s (%s/frame)\n",
		args.Impl, format, args.Width, args.Height, args.Iterations, elapsed.Round(time.Millisecond), perFrame)
}

// syntheticFrame fills a frame with a repeating gradient.
func syntheticFrame(width, height int, format capture.PixelFormat) *capture.RawFrame {
	bpp := format.BytesPerPixel()
	pix := make([]byte, width*height*bpp)
	for i := 0; i < len(pix); i += bpp {
		pix[i] = uint8(i % 256)
		pix[i+1] = uint8(i % 128)
		pix[i+2] = uint8(i % 64)
		if bpp == 4 {
			pix[i+3] = 255
		}
	}
	return capture.NewRawFrame(width, height, width*bpp, format, pix, nil)
}
