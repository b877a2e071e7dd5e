package domain

import "errors"

// ErrSendPermission marks an outbound send rejected because the bot lacks
// (or has lost) permission to post in the target chat. Permission loss
// affects every subsequent send to the same chat identically, so callers
// stop delivering remaining chunks when they see it.
var ErrSendPermission = errors.New("send permission denied")
