package kernel

import "errors"

var (
	ErrStreamExists     = errors.New("stream already exists")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrStreamForked     = errors.New("stream is forked")
	ErrSequenceConflict = errors.New("sequence conflict")
	ErrNotStreamAuthor  = errors.New("only the stream author may extend it")
)
