// Package photo prepares student photos for the roster.
package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	DefaultSize    = 150
	DefaultQuality = 80

	dataURLPrefix = "data:image/jpeg;base64,"
	proxyBase     = "https://images.weserv.nl/"
)

var ErrInvalidImage = errors.New("invalid image")

// CropSquare center-crops an image to a size x size JPEG and returns it as
// a data URL
func CropSquare(r io.Reader, size, quality int) (string, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	square := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, square, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// IsDataURL reports whether ref holds embedded image data
func IsDataURL(ref string) bool {
	return strings.HasPrefix(ref, "data:image/")
}

// DisplayURL returns the URL a client should render for a stored photo
// reference. Embedded images and pravatar avatars are already square;
// other remote images go through the weserv crop proxy.
func DisplayURL(ref string, size int) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || IsDataURL(ref) || strings.Contains(ref, "pravatar.cc") {
		return ref
	}
	if size <= 0 {
		size = DefaultSize
	}
	q := url.Values{}
	q.Set("url", ref)
	q.Set("w", fmt.Sprint(size))
	q.Set("h", fmt.Sprint(size))
	q.Set("fit", "cover")
	q.Set("a", "smart")
	return proxyBase + "?" + q.Encode()
}
