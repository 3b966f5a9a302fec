package audiocore

import (
	"github.com/tphakala/rtaudio/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Sentinel errors. Errors returned by this package and its subpackages match
// them with errors.Is by category.
var (
	// ErrConfiguration is returned for invalid sample rates, buffer sizes or
	// buffer configs. It is raised before any state changes.
	ErrConfiguration = errors.Newf("invalid audio configuration").
		Component(ComponentAudioCore).
		Category(errors.CategoryConfiguration).
		Build()

	// ErrCapacity is returned when an allocation exceeds a memory budget
	ErrCapacity = errors.Newf("memory budget exceeded").
		Component(ComponentAudioCore).
		Category(errors.CategoryLimit).
		Build()

	// ErrShapeMismatch is returned when a block's channel count does not
	// match the buffer
	ErrShapeMismatch = errors.Newf("channel shape mismatch").
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Build()

	// ErrProcessingFailure marks a plugin chain failure for one block
	ErrProcessingFailure = errors.Newf("plugin chain failed").
		Component(ComponentAudioCore).
		Category(errors.CategoryProcessing).
		Build()

	// ErrBufferNotFound is returned when a buffer id is not registered
	ErrBufferNotFound = errors.Newf("buffer not found").
		Component(ComponentAudioCore).
		Category(errors.CategoryNotFound).
		Build()

	// ErrBufferClosed is returned when an operation needs an open buffer
	ErrBufferClosed = errors.Newf("buffer closed").
		Component(ComponentAudioCore).
		Category(errors.CategoryState).
		Build()
)
