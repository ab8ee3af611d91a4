package predict

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"testing"

	"github.com/Brownie44l1/food-api/internal/imageloader"
	"github.com/Brownie44l1/food-api/internal/model"
	"github.com/Brownie44l1/food-api/internal/nutrition"
	"github.com/Brownie44l1/food-api/internal/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	calls int
	img   *imageloader.Image
	err   error
}

func (f *fakeLoader) Fetch(_ context.Context, _ string) (*imageloader.Image, error) {
	f.calls++
	return f.img, f.err
}

type fakeTransformer struct {
	calls int
	panic bool
}

func (f *fakeTransformer) Transform(_ image.Image) preprocess.Tensor {
	f.calls++
	if f.panic {
		panic("index out of range")
	}
	return preprocess.Tensor{Shape: []int64{1, 2, 2, 3}, Data: make([]float32, 12)}
}

type fakeClassifier struct {
	calls int
	preds []model.Prediction
	err   error
	gotK  int
}

func (f *fakeClassifier) Classify(_ preprocess.Tensor, k int) ([]model.Prediction, error) {
	f.calls++
	f.gotK = k
	return f.preds, f.err
}

type countingCatalog struct {
	*nutrition.Catalog
	lookups int
	panic   bool
}

func (c *countingCatalog) Lookup(label string) json.RawMessage {
	c.lookups++
	if c.panic {
		panic("nil map")
	}
	return c.Catalog.Lookup(label)
}

type fixture struct {
	loader     *fakeLoader
	pre        *fakeTransformer
	classifier *fakeClassifier
	catalog    *countingCatalog
	svc        *Service
}

func newFixture(t *testing.T, top model.Prediction) *fixture {
	t.Helper()
	cat, err := nutrition.New(map[string]json.RawMessage{
		"cheeseburger": json.RawMessage(`{"calories":303}`),
		"default":      json.RawMessage(`{"calories":0}`),
	})
	require.NoError(t, err)

	f := &fixture{
		loader:     &fakeLoader{img: &imageloader.Image{Image: image.NewRGBA(image.Rect(0, 0, 8, 8)), Format: "jpeg"}},
		pre:        &fakeTransformer{},
		classifier: &fakeClassifier{preds: []model.Prediction{top}},
		catalog:    &countingCatalog{Catalog: cat},
	}
	f.svc = NewService(f.loader, f.pre, f.classifier, f.catalog)
	return f
}

func TestPredict_CatalogHit(t *testing.T) {
	f := newFixture(t, model.Prediction{Label: "cheeseburger", Confidence: 0.87})

	resp, err := f.svc.Predict(context.Background(), Request{ImageURL: "https://example.com/burger.jpg"})
	require.NoError(t, err)

	assert.Equal(t, "cheeseburger", resp.Prediction.Label)
	assert.InDelta(t, 0.87, resp.Prediction.Probability, 1e-6)
	assert.JSONEq(t, `{"calories":303}`, string(resp.Nutrition))
	assert.Equal(t, 1, f.classifier.gotK)
}

func TestPredict_LabelIsLowerCasedForLookup(t *testing.T) {
	f := newFixture(t, model.Prediction{Label: "CheeseBurger", Confidence: 0.5})

	resp, err := f.svc.Predict(context.Background(), Request{ImageURL: "https://example.com/burger.jpg"})
	require.NoError(t, err)

	assert.Equal(t, "CheeseBurger", resp.Prediction.Label)
	assert.JSONEq(t, `{"calories":303}`, string(resp.Nutrition))
}

func TestPredict_CatalogMissFallsBackToDefault(t *testing.T) {
	f := newFixture(t, model.Prediction{Label: "hamburger", Confidence: 0.6})

	resp, err := f.svc.Predict(context.Background(), Request{ImageURL: "https://example.com/burger.jpg"})
	require.NoError(t, err)

	assert.Equal(t, "hamburger", resp.Prediction.Label)
	assert.JSONEq(t, `{"calories":0}`, string(resp.Nutrition))
}

func TestPredict_MissingURL(t *testing.T) {
	for _, url := range []string{"", "   "} {
		f := newFixture(t, model.Prediction{Label: "cheeseburger", Confidence: 0.87})

		_, err := f.svc.Predict(context.Background(), Request{ImageURL: url})

		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, MissingImageURLMessage, err.Error())
		assert.Zero(t, f.loader.calls, "no network call for a missing url")
	}
}

func TestPredict_AcquisitionFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"download", &imageloader.DownloadError{URL: "u", Err: errors.New("404 Not Found for url: u")}},
		{"decode", &imageloader.DecodeError{URL: "u", Err: errors.New("image: unknown format")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.Prediction{Label: "cheeseburger", Confidence: 0.87})
			f.loader.err = tt.err

			_, err := f.svc.Predict(context.Background(), Request{ImageURL: "u"})

			var acqErr *AcquisitionError
			require.ErrorAs(t, err, &acqErr)
			assert.Equal(t, "Failed to download image from URL: "+tt.err.Error(), err.Error())
			assert.Zero(t, f.pre.calls)
			assert.Zero(t, f.classifier.calls)
			assert.Zero(t, f.catalog.lookups)
		})
	}
}

func TestPredict_InternalFailuresHideDetail(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		stage Stage
	}{
		{"unexpected loader error", func(f *fixture) { f.loader.err = errors.New("boom") }, StageImageFetched},
		{"preprocess panic", func(f *fixture) { f.pre.panic = true }, StagePreprocessed},
		{"classifier error", func(f *fixture) { f.classifier.err = errors.New("tensor shape mismatch") }, StageClassified},
		{"no predictions", func(f *fixture) { f.classifier.preds = nil }, StageClassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.Prediction{Label: "cheeseburger", Confidence: 0.87})
			tt.setup(f)

			_, err := f.svc.Predict(context.Background(), Request{ImageURL: "https://example.com/burger.jpg"})

			var internalErr *InternalError
			require.ErrorAs(t, err, &internalErr)
			assert.Equal(t, InternalErrorMessage, err.Error())
			assert.Equal(t, tt.stage, internalErr.Stage)
			assert.NotEmpty(t, internalErr.Detail())
			assert.Zero(t, f.catalog.lookups)
		})
	}
}

func TestPredict_CatalogPanicIsNutritionStageError(t *testing.T) {
	f := newFixture(t, model.Prediction{Label: "cheeseburger", Confidence: 0.87})
	f.catalog.panic = true

	_, err := f.svc.Predict(context.Background(), Request{ImageURL: "https://example.com/burger.jpg"})

	var internalErr *InternalError
	require.ErrorAs(t, err, &internalErr)
	assert.Equal(t, InternalErrorMessage, err.Error())
	assert.Equal(t, StageNutritionResolved, internalErr.Stage)
	assert.Equal(t, 1, f.classifier.calls)
}

func TestWithTopK(t *testing.T) {
	f := newFixture(t, model.Prediction{Label: "cheeseburger", Confidence: 0.87})
	svc := NewService(f.loader, f.pre, f.classifier, f.catalog, WithTopK(5))

	_, err := svc.Predict(context.Background(), Request{ImageURL: "u"})
	require.NoError(t, err)
	assert.Equal(t, 5, f.classifier.gotK)
}

func TestResponseJSON(t *testing.T) {
	resp := Response{
		Prediction: Prediction{Label: "cheeseburger", Probability: 0.5},
		Nutrition:  json.RawMessage(`{"calories":303}`),
	}
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction":{"label":"cheeseburger","probability":0.5},"nutrition":{"calories":303}}`, string(raw))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "success", outcomeOf(nil))
	assert.Equal(t, "client_error", outcomeOf(&InputError{Msg: "x"}))
	assert.Equal(t, "acquisition_error", outcomeOf(&AcquisitionError{Err: errors.New("x")}))
	assert.Equal(t, "internal_error", outcomeOf(errors.New("x")))
}
