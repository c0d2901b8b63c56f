package persona

import "errors"

// Errors for persona operations.
var (
	ErrUnknownKind     = errors.New("unknown persona kind")
	ErrNoQuestions     = errors.New("model produced no usable questions")
	ErrMalformedReply  = errors.New("model reply did not match the expected format")
	ErrScoreOutOfRange = errors.New("feedback score out of range")
)
