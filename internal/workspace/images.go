package workspace

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
)

// ReadImage decodes a PNG or JPEG capture from disk. A missing file is
// not an error; it reads as nil so evaluation can apply its no-image
// penalties instead of aborting.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// WritePNG encodes an image to disk as PNG.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode image %s: %w", path, err)
	}
	return nil
}
