// AngelaMos | 2026
// errors.go

package access

import "errors"

var (
	ErrUnknownTier         = errors.New("unknown tier")
	ErrUnknownFeature      = errors.New("unknown feature")
	ErrUnknownAction       = errors.New("unknown action")
	ErrUnknownResource     = errors.New("unknown resource type")
	ErrUnknownLimitType    = errors.New("unknown limit type")
	ErrUnknownPermission   = errors.New("unknown permission")
	ErrUnknownWindow       = errors.New("unknown time restriction")
	ErrUnknownCondition    = errors.New("unknown custom condition")
	ErrInvalidMatrix       = errors.New("invalid permission matrix")
	ErrInvalidUsageContext = errors.New("invalid usage context")
)
