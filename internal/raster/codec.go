package raster

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
)

// ErrMalformedImage is returned by Decode for input that is not a PNG data
// URL (or bare base64 PNG).
var ErrMalformedImage = errors.New("raster: malformed image")

const dataURLPrefix = "data:image/png;base64,"

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// Encode turns a snapshot into a PNG data URL. The encoding is lossless:
// Decode of the result reproduces the snapshot's pixels exactly.
func Encode(s Snapshot) (string, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, s); err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// EncodePNG writes the snapshot as a PNG stream.
func EncodePNG(buf *bytes.Buffer, s Snapshot) error {
	if s.IsZero() {
		return fmt.Errorf("%w: empty snapshot", ErrMalformedImage)
	}
	if err := encoder.Encode(buf, s.Image()); err != nil {
		return fmt.Errorf("raster: encode png: %w", err)
	}
	return nil
}

// Decode parses a data URL produced by Encode (a bare base64 payload is
// accepted too) into a width x height snapshot. Images of another size are
// cropped or padded at the origin.
func Decode(s string, width, height int) (Snapshot, error) {
	snap, _, err := DecodeFit(s, width, height)
	return snap, err
}

// DecodeFit is Decode that also reports whether the image already had the
// requested size, i.e. whether s is a faithful encoding of the result.
func DecodeFit(s string, width, height int) (Snapshot, bool, error) {
	if width <= 0 || height <= 0 {
		return Snapshot{}, false, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	payload, err := dataURLPayload(s)
	if err != nil {
		return Snapshot{}, false, err
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}
	b := img.Bounds()
	return FromImage(img, width, height), b.Dx() == width && b.Dy() == height, nil
}

func dataURLPayload(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrMalformedImage)
	}
	if !strings.HasPrefix(s, "data:") {
		return s, nil
	}
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", fmt.Errorf("%w: not a base64 data URL", ErrMalformedImage)
	}
	if !strings.HasPrefix(header, "data:image/png") {
		return "", fmt.Errorf("%w: unsupported media type %q", ErrMalformedImage, strings.TrimPrefix(header, "data:"))
	}
	return payload, nil
}
