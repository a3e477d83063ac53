package service

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	// Registers the JPEG decoder with image.Decode.
	_ "image/jpeg"

	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

// DecodeImage decodes a PNG or JPEG into an Object. Grayscale images become
// 2-D objects, opaque images RGB (3 channels) and everything else RGBA.
func DecodeImage(r io.Reader) (domain.Object, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return domain.Object{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return ImageToObject(img), nil
}

// ImageToObject copies img into a row-major Object.
func ImageToObject(img image.Image) domain.Object {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()

	if g, ok := img.(*image.Gray); ok {
		shape := domain.Shape{Height: h, Width: w}
		data := make([]byte, 0, shape.Len())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := g.PixOffset(b.Min.X, y)
			data = append(data, g.Pix[off:off+w]...)
		}
		return domain.Object{Shape: shape, Data: data}
	}

	channels := 3
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		channels = 4
	}
	shape := domain.Shape{Height: h, Width: w, Channels: channels}
	data := make([]byte, 0, shape.Len())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			data = append(data, c.R, c.G, c.B)
			if channels == 4 {
				data = append(data, c.A)
			}
		}
	}
	return domain.Object{Shape: shape, Data: data}
}

// ObjectToImage is the inverse of ImageToObject.
func ObjectToImage(obj domain.Object) (image.Image, error) {
	s := obj.Shape
	if !s.Valid() || len(obj.Data) != s.Len() {
		return nil, fmt.Errorf("%w: %dx%dx%d with %d bytes", zerrors.ErrInvalidShape, s.Height, s.Width, s.Channels, len(obj.Data))
	}
	rect := image.Rect(0, 0, s.Width, s.Height)

	switch s.Channels {
	case 0, 1:
		img := image.NewGray(rect)
		copy(img.Pix, obj.Data)
		return img, nil
	case 3:
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(obj.Data); i, j = i+3, j+4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = obj.Data[i], obj.Data[i+1], obj.Data[i+2], 0xff
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, obj.Data)
		return img, nil
	}
	return nil, fmt.Errorf("%w: %d channels cannot be encoded as an image", zerrors.ErrInvalidShape, s.Channels)
}

// EncodePNG writes obj as a PNG image.
func EncodePNG(w io.Writer, obj domain.Object) error {
	img, err := ObjectToImage(obj)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
