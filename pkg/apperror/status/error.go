package status

// ErrorCode is a numeric code to classify API errors in a stable way
type ErrorCode int

// Query client/validation errors start at 0
const (
	QueryInvalidRequestBody ErrorCode = iota // 0
	QueryMissingQuestion                     // 1
)

// Internal errors start at 1000
const (
	ErrorCodeInternal ErrorCode = 1000 + iota // 1000
	QueryEmbedFailed                          // 1001
	QuerySearchFailed                         // 1002
	QueryLLMFailed                            // 1003
)
