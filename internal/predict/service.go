package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Brownie44l1/food-api/internal/imageloader"
	"github.com/Brownie44l1/food-api/internal/metrics"
	"github.com/Brownie44l1/food-api/internal/model"
	"github.com/Brownie44l1/food-api/internal/preprocess"
	"github.com/rs/zerolog/log"
)

// Stage names a step of the per-request pipeline.
type Stage string

const (
	StageValidated         Stage = "validated"
	StageImageFetched      Stage = "image_fetched"
	StagePreprocessed      Stage = "preprocessed"
	StageClassified        Stage = "classified"
	StageNutritionResolved Stage = "nutrition_resolved"
)

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*imageloader.Image, error)
}

type Transformer interface {
	Transform(img image.Image) preprocess.Tensor
}

type Classifier interface {
	Classify(t preprocess.Tensor, k int) ([]model.Prediction, error)
}

type Catalog interface {
	Lookup(label string) json.RawMessage
	Has(label string) bool
}

type Request struct {
	ImageURL string `json:"image_url"`
}

type Prediction struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

type Response struct {
	Prediction Prediction      `json:"prediction"`
	Nutrition  json.RawMessage `json:"nutrition"`
}

// Service runs the fetch, preprocess, classify, lookup pipeline. It holds only
// read-only collaborators and is safe for concurrent use.
type Service struct {
	loader     ImageFetcher
	pre        Transformer
	classifier Classifier
	catalog    Catalog
	topK       int
}

type Option func(*Service)

// WithTopK sets how many labels are requested from the classifier. Only the
// best one is returned.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

func NewService(loader ImageFetcher, pre Transformer, classifier Classifier, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		loader:     loader,
		pre:        pre,
		classifier: classifier,
		catalog:    catalog,
		topK:       1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict returns a *Response, or an *InputError, *AcquisitionError or
// *InternalError.
func (s *Service) Predict(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := s.predict(ctx, req)
	outcome := outcomeOf(err)
	metrics.Timing(metrics.PipelineStageLatency, time.Since(start), []string{metrics.Tag("stage", "total"), metrics.Tag("outcome", outcome)})
	metrics.Incr(metrics.PipelineOutcome, []string{metrics.Tag("outcome", outcome)})
	return resp, err
}

func (s *Service) predict(ctx context.Context, req Request) (*Response, error) {
	url := strings.TrimSpace(req.ImageURL)
	if url == "" {
		log.Debug().Str("stage", string(StageValidated)).Msg("request rejected: missing image_url")
		return nil, &InputError{Msg: MissingImageURLMessage}
	}

	var img *imageloader.Image
	err := timed(StageImageFetched, func() (err error) {
		img, err = s.loader.Fetch(ctx, url)
		return err
	})
	if err != nil {
		if imageloader.IsAcquisitionError(err) {
			log.Warn().Err(err).Str("url", url).Msg("image acquisition failed")
			return nil, &AcquisitionError{Err: err}
		}
		return nil, s.internal(StageImageFetched, err)
	}
	metrics.Histogram(metrics.ImageBytes, float64(img.Bytes), []string{metrics.Tag("format", img.Format)})

	var tensor preprocess.Tensor
	err = timed(StagePreprocessed, func() error {
		return guard(func() error {
			tensor = s.pre.Transform(img.Image)
			return nil
		})
	})
	if err != nil {
		return nil, s.internal(StagePreprocessed, err)
	}

	var preds []model.Prediction
	err = timed(StageClassified, func() error {
		return guard(func() (err error) {
			preds, err = s.classifier.Classify(tensor, s.topK)
			return err
		})
	})
	if err != nil {
		return nil, s.internal(StageClassified, err)
	}
	if len(preds) == 0 {
		return nil, s.internal(StageClassified, errors.New("classifier returned no predictions"))
	}
	top := preds[0]

	var nutrition json.RawMessage
	err = timed(StageNutritionResolved, func() error {
		return guard(func() error {
			label := strings.ToLower(top.Label)
			if !s.catalog.Has(label) {
				metrics.Incr(metrics.CatalogFallback, nil)
				log.Debug().Str("label", top.Label).Msg("no nutrition entry, using default")
			}
			nutrition = s.catalog.Lookup(label)
			return nil
		})
	})
	if err != nil {
		return nil, s.internal(StageNutritionResolved, err)
	}

	log.Info().
		Str("url", url).
		Str("label", top.Label).
		Float32("probability", top.Confidence).
		Msg("prediction served")

	return &Response{
		Prediction: Prediction{Label: top.Label, Probability: top.Confidence},
		Nutrition:  nutrition,
	}, nil
}

func (s *Service) internal(stage Stage, err error) error {
	ie := &InternalError{Stage: stage, Err: err}
	log.Error().Err(err).Str("stage", string(stage)).Msg("an error occurred during prediction")
	return ie
}

func timed(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.Timing(metrics.PipelineStageLatency, time.Since(start), []string{metrics.Tag("stage", string(stage))})
	return err
}

// guard turns a panic inside fn into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("stack", string(debug.Stack())).Msgf("recovered panic: %v", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func outcomeOf(err error) string {
	var inputErr *InputError
	var acqErr *AcquisitionError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &inputErr):
		return "client_error"
	case errors.As(err, &acqErr):
		return "acquisition_error"
	default:
		return "internal_error"
	}
}
