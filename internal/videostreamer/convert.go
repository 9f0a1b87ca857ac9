package videostreamer

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// yuy2ToRGBA converts a packed YUY2 (Y0 U Y1 V per pixel pair) buffer into
// dst's RGBA surface, matching pkg/decode's YCbCr 4:2:2 subsampling layout
// generalized to a direct RGBA target instead of an intermediate
// image.YCbCr.
func yuy2ToRGBA(dst *image.RGBA, frame []byte, width, height int) {
	for y := 0; y < height; y++ {
		row := frame[y*width*2 : (y+1)*width*2]
		for x := 0; x+1 < width; x += 2 {
			y0 := row[x*2]
			u := row[x*2+1]
			y1 := row[x*2+2]
			v := row[x*2+3]

			r0, g0, b0 := yuvToRGB(y0, u, v)
			r1, g1, b1 := yuvToRGB(y1, u, v)

			i0 := dst.PixOffset(x, y)
			dst.Pix[i0], dst.Pix[i0+1], dst.Pix[i0+2], dst.Pix[i0+3] = r0, g0, b0, 0xFF
			i1 := dst.PixOffset(x+1, y)
			dst.Pix[i1], dst.Pix[i1+1], dst.Pix[i1+2], dst.Pix[i1+3] = r1, g1, b1, 0xFF
		}
	}
}

// nv12ToRGBA converts a semi-planar NV12 buffer (full-res Y plane followed
// by an interleaved half-res UV plane) into dst's RGBA surface.
func nv12ToRGBA(dst *image.RGBA, frame []byte, width, height int) {
	ySize := width * height
	yPlane := frame[:ySize]
	uvPlane := frame[ySize:]

	for y := 0; y < height; y++ {
		uvRow := uvPlane[(y/2)*width:]
		for x := 0; x < width; x++ {
			yy := yPlane[y*width+x]
			u := uvRow[(x/2)*2]
			v := uvRow[(x/2)*2+1]

			r, g, b := yuvToRGB(yy, u, v)
			i := dst.PixOffset(x, y)
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, b, 0xFF
		}
	}
}

// mjpegToRGBA decodes a baseline JPEG frame and copies it into dst.
func mjpegToRGBA(dst *image.RGBA, frame []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("videostreamer: decode mjpeg frame: %w", err)
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, img.At(x, y))
		}
	}
	return nil
}

// yuvToRGB is the standard BT.601 full-range YCbCr-to-RGB conversion.
func yuvToRGB(y, u, v byte) (r, g, b byte) {
	c := int32(y) - 16
	d := int32(u) - 128
	e := int32(v) - 128

	r32 := (298*c + 409*e + 128) >> 8
	g32 := (298*c - 100*d - 208*e + 128) >> 8
	b32 := (298*c + 516*d + 128) >> 8

	return clamp8(r32), clamp8(g32), clamp8(b32)
}

func clamp8(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
