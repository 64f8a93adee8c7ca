package dmm

import "errors"

var (
	ErrParse = errors.New("unparseable measurement response")
)
