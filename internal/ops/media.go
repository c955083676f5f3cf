package ops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/yuin/goldmark"
	"golang.org/x/image/draw"
)

// Resized image dimensions.
const (
	resizeWidth  = 100
	resizeHeight = 100
)

// ResizeImage scales image.jpg to 100x100 and writes image_resized.jpg.
// Aspect ratio is not preserved.
func (h *Handlers) ResizeImage(ctx context.Context) (string, error) {
	data, err := h.readFile("image.jpg")
	if err != nil {
		return "", err
	}

	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image.jpg: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := image.NewRGBA(image.Rect(0, 0, resizeWidth, resizeHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 75}); err != nil {
		return "", fmt.Errorf("encode image_resized.jpg: %w", err)
	}
	if err := h.writeFile("image_resized.jpg", buf.Bytes()); err != nil {
		return "", err
	}
	return "Resized image successfully.", nil
}

// ConvertMarkdown renders document.md to document.html.
func (h *Handlers) ConvertMarkdown(ctx context.Context) (string, error) {
	src, err := h.readFile("document.md")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("convert document.md: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := h.writeFile("document.html", buf.Bytes()); err != nil {
		return "", err
	}
	return "Converted Markdown to HTML.", nil
}
