package executor

import "errors"

var ErrExecutorClosed = errors.New("executor error: engine is shut down, request not queued")
var ErrSequenceGap = errors.New("sequence error: ordered batch is not contiguous with last applied")
var ErrCatchUpNotContiguous = errors.New("catch-up error: batch list is not contiguous from last applied")
var ErrInstallDescriptorMismatch = errors.New("install error: local descriptor does not match the session target at Done")
var ErrUnexpectedInstallMessage = errors.New("install error: message arrived outside its position in the session")
