package transcode

import "errors"

// ErrConversionFailed indicates the transcoder subprocess could not be
// spawned or exited non-zero. The failure is scoped to the one source being
// converted.
var ErrConversionFailed = errors.New("audio conversion failed")
