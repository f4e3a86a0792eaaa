package upload

import (
	"errors"
	"fmt"
)

var (
	ErrNotMultipart           = errors.New("upload is not multipart")
	ErrIntegrity              = errors.New("integrity check failed")
	ErrTemporaryPathMalformed = errors.New("malformed temporary path")
	ErrManipulation           = errors.New("manipulation failed")
	ErrInvalidInstruction     = errors.New("invalid manipulation instruction")
	ErrIllegalVersion         = errors.New("illegal version name")
	ErrNoExtensions           = errors.New("no list of valid extensions supplied")
	ErrNoManipulator          = errors.New("no manipulator configured")
)

// UploadNotMultipartError means a plain string arrived where a file was
// expected, which almost always points at a form without multipart encoding.
type UploadNotMultipartError struct {
	Value string
}

func (e *UploadNotMultipartError) Error() string {
	return fmt.Sprintf("do not know how to handle a string with value %q that was uploaded; check that the form's encoding is multipart/form-data", e.Value)
}

func (e *UploadNotMultipartError) Unwrap() error { return ErrNotMultipart }

// IntegrityError carries a message meant for the end user.
type IntegrityError struct {
	Extension string
	Message   string
}

func (e *IntegrityError) Error() string { return e.Message }

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

type TemporaryPathMalformedError struct {
	Token string
}

func (e *TemporaryPathMalformedError) Error() string {
	return fmt.Sprintf("%s is not a valid temporary path!", e.Token)
}

func (e *TemporaryPathMalformedError) Unwrap() error { return ErrTemporaryPathMalformed }

// ManipulationError is returned by manipulators when the input could not be
// decoded or transformed. It matches ErrManipulation with errors.Is.
type ManipulationError struct {
	Op   string
	Path string
	Err  error
}

func (e *ManipulationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: manipulation failed", e.Op, e.Path)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ManipulationError) Unwrap() error { return e.Err }

func (e *ManipulationError) Is(target error) bool { return target == ErrManipulation }
