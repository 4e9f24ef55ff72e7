package codestream

import (
	"errors"
	"fmt"
	"io"
)

// Error taxonomy shared by every layer of the parser.
var (
	// ErrCorrupted reports a structural violation of the codestream syntax.
	ErrCorrupted = errors.New("j2kparse: corrupted codestream")

	// ErrUnsupported reports a valid codestream feature this parser does not implement.
	ErrUnsupported = errors.New("j2kparse: unsupported feature")

	// ErrTruncated reports an end of stream at a point where a truncated
	// codestream is still usable.
	ErrTruncated = errors.New("j2kparse: codestream truncated")

	// ErrInvalidParam reports an invalid host parameter.
	ErrInvalidParam = errors.New("j2kparse: invalid parameter")
)

// Corruptf returns an error wrapping ErrCorrupted.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorrupted}, args...)...)
}

// Unsupportedf returns an error wrapping ErrUnsupported.
func Unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnsupported}, args...)...)
}

// InvalidParamf returns an error wrapping ErrInvalidParam.
func InvalidParamf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParam}, args...)...)
}

// IsEOF reports whether err was caused by reaching the end of the stream.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrTruncated)
}

// Truncated converts an end-of-stream error into ErrTruncated and returns
// any other error unchanged.
func Truncated(err error) error {
	if err == nil || errors.Is(err, ErrTruncated) {
		return err
	}
	if IsEOF(err) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
