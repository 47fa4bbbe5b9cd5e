package ai

import (
	"bytes"
	"encoding/base64"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// maxImageEdge bounds the longer edge of an attachment before upload.
// Camera originals are far larger than any model needs.
const maxImageEdge = 1024

const jpegQuality = 85

// LoadImage reads an image file, downscales it to fit the upload bound,
// and re-encodes it as a base64 JPEG part.
func LoadImage(path string) (*ImagePart, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	return EncodeImage(img)
}

// EncodeImage downscales and encodes an in-memory image as a base64 JPEG part.
func EncodeImage(img image.Image) (*ImagePart, error) {
	bounds := img.Bounds()
	if bounds.Dx() > maxImageEdge || bounds.Dy() > maxImageEdge {
		img = imaging.Fit(img, maxImageEdge, maxImageEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	return &ImagePart{
		MIMEType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
