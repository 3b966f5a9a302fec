package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(err *EnhancedError) { r.reported = append(r.reported, err) }
func (r *recordingReporter) IsEnabled() bool                { return true }

func TestBuildDefaults(t *testing.T) {
	ee := New(fmt.Errorf("boom")).Build()

	assert.Equal(t, "boom", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildInheritsCategory(t *testing.T) {
	sentinel := Newf("buffer full").Category(CategoryLimit).Build()
	wrapped := New(sentinel).Component("audiocore").Context("frames", 10).Build()

	assert.Equal(t, CategoryLimit, wrapped.Category)
	assert.True(t, Is(wrapped, sentinel))
	assert.Equal(t, 10, wrapped.GetContext()["frames"])
}

func TestIsMatchesByCategory(t *testing.T) {
	a := Newf("bad rate").Category(CategoryConfiguration).Build()
	b := Newf("bad size").Category(CategoryConfiguration).Build()
	c := Newf("shape").Category(CategoryValidation).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
	assert.True(t, IsCategory(fmt.Errorf("ctx: %w", a), CategoryConfiguration))
}

func TestPriorityFallback(t *testing.T) {
	assert.Equal(t, PriorityHigh, Newf("x").Priority(PriorityHigh).Build().Priority)
	assert.Equal(t, PriorityMedium, Newf("x").Priority("urgent").Build().Priority)
	assert.Empty(t, Newf("x").Priority("").Build().Priority)
}

func TestNilErrorMessage(t *testing.T) {
	ee := New(nil).Component("audiocore").Category(CategoryState).Build()
	assert.Equal(t, "audiocore: state", ee.Error())
}

func TestTelemetryReporter(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	Newf("reported").Category(CategoryDevice).Build()

	require.Len(t, rec.reported, 1)
	assert.Equal(t, CategoryDevice, rec.reported[0].Category)

	SetTelemetryReporter(nil)
	Newf("not reported").Build()
	assert.Len(t, rec.reported, 1)
}

func TestScrubPaths(t *testing.T) {
	got := scrubPaths("open /home/user/audio/take1.wav: denied")
	assert.Equal(t, "open [path]/take1.wav: denied", got)
}
