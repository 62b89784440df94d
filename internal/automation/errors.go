package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrSceneNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSceneNotFound is returned when a scene ID does not exist.
	ErrSceneNotFound = errors.New("scene: not found")

	// ErrInvalidScene is returned when scene validation fails.
	ErrInvalidScene = errors.New("scene: invalid")

	// ErrInvalidTitle is returned when a scene title is empty or too long.
	ErrInvalidTitle = errors.New("scene: invalid title")

	// ErrInvalidTrigger is returned when a scene trigger is invalid.
	ErrInvalidTrigger = errors.New("scene: invalid trigger")

	// ErrInvalidCondition is returned when a trigger condition is invalid.
	ErrInvalidCondition = errors.New("scene: invalid condition")

	// ErrInvalidAction is returned when a scene action is invalid.
	ErrInvalidAction = errors.New("scene: invalid action")

	// ErrInvalidVariable is returned when a variable name is empty or too long.
	ErrInvalidVariable = errors.New("scene: invalid variable name")

	// ErrHTTPStatus is returned when an http-request action gets a non-2xx
	// response.
	ErrHTTPStatus = errors.New("scene: http request failed")
)
