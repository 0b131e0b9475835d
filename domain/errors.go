package domain

import "errors"

// ErrStructural marks an event that can never be applied: unknown entity type,
// malformed natural key, missing timestamp or a field set of the wrong type.
// A structural defect fails the whole record file.
var ErrStructural = errors.New("structural defect")
