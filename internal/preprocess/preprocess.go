package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/nfnt/resize"
)

type Layout string

const (
	// NHWC is batch, height, width, channels (Keras / TensorFlow exports).
	NHWC Layout = "NHWC"
	// NCHW is batch, channels, height, width (PyTorch exports).
	NCHW Layout = "NCHW"
)

type Scaling string

const (
	// ScalingMobileNetV2 maps [0, 255] to [-1, 1].
	ScalingMobileNetV2 Scaling = "mobilenet_v2"
	// ScalingTF is an alias of ScalingMobileNetV2.
	ScalingTF Scaling = "tf"
	// ScalingUnit maps [0, 255] to [0, 1].
	ScalingUnit Scaling = "unit"
	// ScalingImageNet applies unit scaling then per-channel ImageNet mean/std.
	ScalingImageNet Scaling = "imagenet"
	ScalingNone     Scaling = "none"
)

const channels = 3

var (
	imageNetMean = [channels]float32{0.485, 0.456, 0.406}
	imageNetStd  = [channels]float32{0.229, 0.224, 0.225}
)

type Config struct {
	Width   int
	Height  int
	Layout  Layout
	Scaling Scaling
}

// Tensor is a dense float32 batch of one RGB image.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func (t Tensor) Len() int {
	return len(t.Data)
}

type Preprocessor struct {
	cfg   Config
	scale func(v float32, channel int) float32
}

func New(cfg Config) (*Preprocessor, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid input resolution %dx%d", cfg.Width, cfg.Height)
	}

	cfg.Layout = Layout(strings.ToUpper(string(cfg.Layout)))
	if cfg.Layout == "" {
		cfg.Layout = NHWC
	}
	if cfg.Layout != NHWC && cfg.Layout != NCHW {
		return nil, fmt.Errorf("unsupported tensor layout %q", cfg.Layout)
	}

	cfg.Scaling = Scaling(strings.ToLower(string(cfg.Scaling)))
	if cfg.Scaling == "" {
		cfg.Scaling = ScalingMobileNetV2
	}
	scale, err := scaler(cfg.Scaling)
	if err != nil {
		return nil, err
	}

	return &Preprocessor{cfg: cfg, scale: scale}, nil
}

func scaler(s Scaling) (func(float32, int) float32, error) {
	switch s {
	case ScalingMobileNetV2, ScalingTF:
		return func(v float32, _ int) float32 { return v/127.5 - 1 }, nil
	case ScalingUnit:
		return func(v float32, _ int) float32 { return v / 255 }, nil
	case ScalingImageNet:
		return func(v float32, c int) float32 { return (v/255 - imageNetMean[c]) / imageNetStd[c] }, nil
	case ScalingNone:
		return func(v float32, _ int) float32 { return v }, nil
	default:
		return nil, fmt.Errorf("unsupported input scaling %q", s)
	}
}

func (p *Preprocessor) Config() Config {
	return p.cfg
}

// Shape is the tensor shape Transform always produces.
func (p *Preprocessor) Shape() []int64 {
	h, w := int64(p.cfg.Height), int64(p.cfg.Width)
	if p.cfg.Layout == NCHW {
		return []int64{1, channels, h, w}
	}
	return []int64{1, h, w, channels}
}

// Transform converts img to RGB, resizes it to the configured resolution
// ignoring aspect ratio, and scales it into a batch-of-one tensor.
func (p *Preprocessor) Transform(img image.Image) Tensor {
	width, height := p.cfg.Width, p.cfg.Height
	data := make([]float32, channels*width*height)

	rgb := toRGB(img)
	var resized *image.RGBA
	if rgb.Bounds().Empty() {
		// nothing to sample, treat as black
		resized = image.NewRGBA(image.Rect(0, 0, width, height))
	} else {
		resized = asRGBA(resize.Resize(uint(width), uint(height), rgb, resize.Bicubic))
	}

	plane := width * height
	for y := 0; y < height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < channels; c++ {
				v := p.scale(float32(px[c]), c)
				if p.cfg.Layout == NCHW {
					data[c*plane+y*width+x] = v
				} else {
					data[(y*width+x)*channels+c] = v
				}
			}
		}
	}

	return Tensor{Shape: p.Shape(), Data: data}
}

// toRGB drops alpha without compositing and expands grayscale or paletted
// images, producing an opaque RGBA image whose origin is (0, 0).
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := out.PixOffset(x-b.Min.X, y-b.Min.Y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}
	return out
}
