package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Brownie44l1/food-api/internal/preprocess"
)

// Metadata describes the exported classifier: tensor names and shapes, the
// class vocabulary in output order, and how inputs must be prepared.
type Metadata struct {
	InputName    string   `json:"input_name"`
	OutputName   string   `json:"output_name"`
	InputShape   []int64  `json:"input_shape"`
	OutputShape  []int64  `json:"output_shape"`
	Classes      []string `json:"classes"`
	ImageSize    int      `json:"image_size"`
	Layout       string   `json:"layout"`
	Scaling      string   `json:"scaling"`
	ApplySoftmax bool     `json:"apply_softmax"`
}

// Prediction is one ranked entry of a classification result.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"probability"`
	Index      int     `json:"-"`
}

func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.Layout == "" {
		m.Layout = string(preprocess.NHWC)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metadata) Validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("metadata lists no classes")
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must have 4 dimensions, got %v", m.InputShape)
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("input_shape batch dimension must be 1, got %d", m.InputShape[0])
	}
	if len(m.OutputShape) != 2 || m.OutputShape[0] != 1 {
		return fmt.Errorf("output_shape must be [1, classes], got %v", m.OutputShape)
	}
	if int(m.OutputShape[1]) != len(m.Classes) {
		return fmt.Errorf("output_shape has %d scores but %d classes are listed", m.OutputShape[1], len(m.Classes))
	}

	want := m.PreprocessConfig()
	p, err := preprocess.New(want)
	if err != nil {
		return fmt.Errorf("metadata describes an unsupported input: %w", err)
	}
	if !shapeEqual(p.Shape(), m.InputShape) {
		return fmt.Errorf("input_shape %v does not match image_size %d in %s layout", m.InputShape, m.ImageSize, m.Layout)
	}
	return nil
}

// PreprocessConfig derives the preprocessing contract from the metadata.
func (m *Metadata) PreprocessConfig() preprocess.Config {
	return preprocess.Config{
		Width:   m.ImageSize,
		Height:  m.ImageSize,
		Layout:  preprocess.Layout(m.Layout),
		Scaling: preprocess.Scaling(m.Scaling),
	}
}

func (m *Metadata) InputSize() int {
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}

func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
