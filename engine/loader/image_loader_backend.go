package loader

import (
	"fmt"
	"image"
	"io"

	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/disintegration/imaging"

	// decoders beyond the ones imaging registers
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageLoaderBackendImpl decodes images with imaging, honouring EXIF orientation.
type imageLoaderBackendImpl struct{}

var _ loaderBackend = &imageLoaderBackendImpl{}

// newImageLoaderBackend creates the imaging-based decoding backend.
//
// Returns:
//   - loaderBackend: the decoding backend
func newImageLoaderBackend() loaderBackend {
	return &imageLoaderBackendImpl{}
}

func (b *imageLoaderBackendImpl) DecodeFile(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

func (b *imageLoaderBackendImpl) Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(true))
}

// toTexture converts a decoded image into tightly packed 8-bit pixels.
//
// Parameters:
//   - key: the texture identifier
//   - img: the decoded image
//   - flipVertical: true to store the bottom row first
//   - format: RGBA32 or BGRA32 channel order
//
// Returns:
//   - *model.Texture: the texture
//   - error: error if the image is empty
func toTexture(key string, img image.Image, flipVertical bool, format model.TextureFormat) (*model.Texture, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("loader: image %q is empty", key)
	}

	var nrgba *image.NRGBA
	if flipVertical {
		nrgba = imaging.FlipV(img)
	} else {
		nrgba = imaging.Clone(img)
	}

	// imaging returns tightly packed rows starting at the origin
	pixels := nrgba.Pix
	if format == model.TextureFormatBGRA32 {
		for i := 0; i+3 < len(pixels); i += 4 {
			pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
		}
	}
	return model.NewTexture(key, pixels, uint32(nrgba.Rect.Dx()), uint32(nrgba.Rect.Dy()), format)
}
