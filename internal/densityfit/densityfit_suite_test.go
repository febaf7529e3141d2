package densityfit_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDensityFit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "DensityFit Suite")
}
