package httpcache

import "errors"

// ErrInvalidArgument is returned by RefreshResponseFor304 when the supplied
// response is not a 304.
var ErrInvalidArgument = errors.New("httpcache: invalid argument")
