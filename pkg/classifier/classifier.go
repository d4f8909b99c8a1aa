// Package classifier provides the crop classifier capability and a loader for
// pre-trained random-forest artifacts stored as JSON.
//
// The artifact layout is:
//
//	{
//	  "name": "crop_recommendation",
//	  "version": 3,
//	  "features": ["n", "p", "k", "temperature", "humidity", "ph", "rainfall"],
//	  "trees": [
//	    {"nodes": [
//	      {"feature": 6, "threshold": 150.5, "left": 1, "right": 2},
//	      {"label": 11},
//	      {"label": "rice"}
//	    ]}
//	  ]
//	}
//
// Internal nodes send x[feature] <= threshold left and everything else right.
// Leaves carry a label that is either an integer class code or a crop name,
// depending on how the model was exported.
package classifier

import (
	"context"
	"fmt"

	"crop-advisor/internal/domain"
)

// Classifier is the prediction capability consumed by the recommendation service.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, features []float64) (domain.CropLabel, error)
}

// Func adapts a plain function to the Classifier interface
type Func func(ctx context.Context, features []float64) (domain.CropLabel, error)

// Predict calls f
func (f Func) Predict(ctx context.Context, features []float64) (domain.CropLabel, error) {
	return f(ctx, features)
}

// ModelLoadError reports a missing or corrupt model artifact
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, domain.ErrModelLoad) match any load failure
func (e *ModelLoadError) Is(target error) bool {
	return target == domain.ErrModelLoad
}
