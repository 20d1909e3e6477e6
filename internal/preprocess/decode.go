package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Decode parses an encoded image. PNG, JPEG and WebP are registered.
func Decode(data []byte) (image.Image, error) {
	return decode(bytes.NewReader(data))
}

// DecodeFile reads and parses an image file.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("preprocess: decode image: %w", err)
	}
	return img, nil
}
