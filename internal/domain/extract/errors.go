package extract

import "errors"

// ErrExtract reports that an extractor panicked and its output was dropped.
var ErrExtract = errors.New("extraction failed")
