package ui

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// PreviewConfig holds configuration for the frame preview
type PreviewConfig struct {
	Width  int // Width in terminal cells
	Height int // Height in terminal cells
}

// DefaultPreviewConfig returns the preview size used for a 16:9 display
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Width:  72,
		Height: 20,
	}
}

// PreviewFor sizes the preview to frame's aspect ratio, at most 72 cells wide
// and narrower when the terminal is. A cell is roughly twice as tall as wide.
func PreviewFor(frame *image.RGBA, termWidth int) PreviewConfig {
	cfg := DefaultPreviewConfig()
	if termWidth > 0 {
		cfg.Width = max(min(cfg.Width, termWidth-8), 8)
	}
	b := frame.Bounds()
	if b.Dx() > 0 {
		cfg.Height = max(cfg.Width*b.Dy()/b.Dx()/2, 1)
	}
	return cfg
}

// DownsampleFrame averages each cell-sized region of frame into one colour
func DownsampleFrame(frame *image.RGBA, config PreviewConfig) [][]color.RGBA {
	bounds := frame.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	// Source pixels per terminal cell, at least one
	cellWidth := max(srcWidth/config.Width, 1)
	cellHeight := max(srcHeight/config.Height, 1)

	preview := make([][]color.RGBA, config.Height)
	for row := 0; row < config.Height; row++ {
		preview[row] = make([]color.RGBA, config.Width)
		for col := 0; col < config.Width; col++ {
			srcX := bounds.Min.X + col*cellWidth
			srcY := bounds.Min.Y + row*cellHeight

			var sumR, sumG, sumB uint32
			pixelCount := 0

			for y := srcY; y < srcY+cellHeight && y < bounds.Max.Y; y++ {
				for x := srcX; x < srcX+cellWidth && x < bounds.Max.X; x++ {
					c := frame.RGBAAt(x, y)
					sumR += uint32(c.R)
					sumG += uint32(c.G)
					sumB += uint32(c.B)
					pixelCount++
				}
			}

			if pixelCount > 0 {
				preview[row][col] = color.RGBA{
					R: uint8(sumR / uint32(pixelCount)),
					G: uint8(sumG / uint32(pixelCount)),
					B: uint8(sumB / uint32(pixelCount)),
					A: 255,
				}
			}
		}
	}

	return preview
}

// RenderPreview draws the grid with ANSI 24-bit background colours, one
// space per cell
func RenderPreview(preview [][]color.RGBA) string {
	if len(preview) == 0 {
		return ""
	}

	var b strings.Builder
	border := strings.Repeat("─", len(preview[0]))

	b.WriteString("  Last frame:\n")
	b.WriteString("  ┌" + border + "┐\n")
	for _, row := range preview {
		b.WriteString("  │")
		for _, pixel := range row {
			// \x1b[48;2;R;G;Bm sets the background colour
			fmt.Fprintf(&b, "\x1b[48;2;%d;%d;%dm \x1b[0m", pixel.R, pixel.G, pixel.B)
		}
		b.WriteString("│\n")
	}
	b.WriteString("  └" + border + "┘\n")

	return b.String()
}
