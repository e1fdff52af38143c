package approx

import (
	"testing"

	"go.viam.com/test"
)

func TestGE(t *testing.T) {
	test.That(t, GE(1.0, 1.0), test.ShouldBeTrue)
	test.That(t, GE(1.0-Epsilon/2, 1.0), test.ShouldBeTrue)
	test.That(t, GE(1.0-2*Epsilon, 1.0), test.ShouldBeFalse)
	test.That(t, GE(2.0, 1.0), test.ShouldBeTrue)
}

func TestLE(t *testing.T) {
	test.That(t, LE(1.0, 1.0), test.ShouldBeTrue)
	test.That(t, LE(1.0+Epsilon/2, 1.0), test.ShouldBeTrue)
	test.That(t, LE(1.0+2*Epsilon, 1.0), test.ShouldBeFalse)
	test.That(t, LE(0.0, 1.0), test.ShouldBeTrue)
}

func TestEqual(t *testing.T) {
	test.That(t, Equal(1.0, 1.0), test.ShouldBeTrue)
	test.That(t, Equal(1.0+Epsilon/2, 1.0), test.ShouldBeTrue)
	test.That(t, Equal(1.0+2*Epsilon, 1.0), test.ShouldBeFalse)
}
