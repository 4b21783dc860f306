package batch

import "errors"

var errMissingResult = errors.New("batch function returned fewer results than keys")
