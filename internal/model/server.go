package model

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Brownie44l1/food-api/internal/metrics"
	"github.com/Brownie44l1/food-api/internal/preprocess"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

type Options struct {
	// SharedLibraryPath points at libonnxruntime; empty uses the platform default.
	SharedLibraryPath string
	// PoolSize is the number of independent sessions. Each serves one request at a time.
	PoolSize int
}

// runner executes one forward pass. Implementations are not reentrant.
type runner interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

type onnxSession struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newONNXSession(modelPath string, m *Metadata) (*onnxSession, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(m.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(m.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{m.InputName}, []string{m.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	copy(s.inputTensor.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := s.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (s *onnxSession) Destroy() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
}

// Server is a pretrained, fixed-weight classifier. It is safe for concurrent
// use; calls beyond the pool size wait for a free session.
type Server struct {
	Metadata Metadata

	runners   []runner
	pool      chan runner
	closeOnce sync.Once
	ownsEnv   bool
}

func NewServer(modelPath, metadataPath string, opts Options) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	runners := make([]runner, 0, opts.PoolSize)
	for i := 0; i < opts.PoolSize; i++ {
		s, err := newONNXSession(modelPath, metadata)
		if err != nil {
			for _, r := range runners {
				r.Destroy()
			}
			ort.DestroyEnvironment()
			return nil, err
		}
		runners = append(runners, s)
	}

	server := newServer(*metadata, runners)
	server.ownsEnv = true

	log.Info().
		Str("model", modelPath).
		Int("classes", len(metadata.Classes)).
		Ints64("inputShape", metadata.InputShape).
		Int("poolSize", opts.PoolSize).
		Msg("model loaded")
	return server, nil
}

func newServer(metadata Metadata, runners []runner) *Server {
	pool := make(chan runner, len(runners))
	for _, r := range runners {
		pool <- r
	}
	return &Server{
		Metadata: metadata,
		runners:  runners,
		pool:     pool,
	}
}

// Classify runs the model on t and returns the k highest scoring classes,
// best first.
func (s *Server) Classify(t preprocess.Tensor, k int) ([]Prediction, error) {
	if !shapeEqual(t.Shape, s.Metadata.InputShape) {
		return nil, fmt.Errorf("tensor shape %v does not match model input %v", t.Shape, s.Metadata.InputShape)
	}
	if t.Len() != s.Metadata.InputSize() {
		return nil, fmt.Errorf("expected %d values, got %d", s.Metadata.InputSize(), t.Len())
	}

	r := <-s.pool
	start := time.Now()
	scores, err := r.Run(t.Data)
	s.pool <- r
	metrics.Timing(metrics.InferenceLatency, time.Since(start), nil)
	if err != nil {
		return nil, err
	}

	if len(scores) < len(s.Metadata.Classes) {
		return nil, fmt.Errorf("model produced %d scores for %d classes", len(scores), len(s.Metadata.Classes))
	}
	scores = scores[:len(s.Metadata.Classes)]
	if s.Metadata.ApplySoftmax {
		scores = Softmax(scores)
	}
	return TopK(scores, s.Metadata.Classes, k), nil
}

func (s *Server) Classes() []string {
	return s.Metadata.Classes
}

// Close releases every session. The server must not be used afterwards.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		for _, r := range s.runners {
			r.Destroy()
		}
		if s.ownsEnv {
			if err := ort.DestroyEnvironment(); err != nil {
				log.Warn().Err(err).Msg("failed to destroy ONNX environment")
			}
		}
	})
}

// TopK ranks scores descending, breaking ties by class index, and returns at
// most k entries (at least one).
func TopK(scores []float32, classes []string, k int) []Prediction {
	n := len(scores)
	if len(classes) < n {
		n = len(classes)
	}
	if n == 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	out := make([]Prediction, k)
	for i := 0; i < k; i++ {
		out[i] = Prediction{Label: classes[idx[i]], Confidence: scores[idx[i]], Index: idx[i]}
	}
	return out
}

func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
