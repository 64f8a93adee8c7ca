package results

import "errors"

var (
	ErrCreateSink    = errors.New("failed to create result file")
	ErrAppendRecord  = errors.New("failed to append record")
	ErrSinkClosed    = errors.New("result sink is closed")
	ErrBadRecordFile = errors.New("malformed record file")
)
