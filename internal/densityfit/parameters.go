package densityfit

import (
	"fmt"
	"math"

	"github.com/san-kum/densfit/internal/amplitude"
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/measure"
)

const (
	DefaultSpreadWidth        = 0.2
	DefaultSpreadRangeInSigma = 4.0
	DefaultForceConstant      = 1e9
)

// Parameters configure one density fitting force provider. They are fixed
// for the lifetime of the provider.
type Parameters struct {
	// SpreadWidth is the Gaussian width in lab length units.
	SpreadWidth float64
	// SpreadRangeInSigma truncates the kernel at this many widths.
	SpreadRangeInSigma float64
	SimilarityMethod   measure.Method
	AmplitudeMethod    amplitude.Method
	ForceConstant      float64
	// Every evaluates the provider on steps divisible by Every only; the
	// forces are scaled up by Every to compensate.
	Every int64
}

func DefaultParameters() Parameters {
	return Parameters{
		SpreadWidth:        DefaultSpreadWidth,
		SpreadRangeInSigma: DefaultSpreadRangeInSigma,
		SimilarityMethod:   measure.InnerProduct,
		AmplitudeMethod:    amplitude.Unity,
		ForceConstant:      DefaultForceConstant,
		Every:              1,
	}
}

func (p Parameters) Validate() error {
	if !(p.SpreadWidth > 0) {
		return fmt.Errorf("%w: spreading width must be positive, got %g", dynamo.ErrInvalidParameter, p.SpreadWidth)
	}
	if !(p.SpreadRangeInSigma > 0) {
		return fmt.Errorf("%w: spreading range must be positive, got %g", dynamo.ErrInvalidParameter, p.SpreadRangeInSigma)
	}
	if math.IsNaN(p.ForceConstant) || math.IsInf(p.ForceConstant, 0) {
		return fmt.Errorf("%w: force constant must be finite, got %g", dynamo.ErrInvalidParameter, p.ForceConstant)
	}
	if p.Every < 1 {
		return fmt.Errorf("%w: evaluation interval must be at least 1, got %d", dynamo.ErrInvalidParameter, p.Every)
	}
	return nil
}
