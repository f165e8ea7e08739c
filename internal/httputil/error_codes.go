package httputil

// API 錯誤代碼常數.
const (
	// 2000-2999: 參數相關錯誤 (400 Bad Request).
	ErrorCodeInvalidParameter  = 2001
	ErrorCodeEmptyKey          = 2002
	ErrorCodeKeyTooLong        = 2003
	ErrorCodeInvalidExpiration = 2004
	ErrorCodeBodyTooLarge      = 2005

	// 4000-4999: 資源相關錯誤.
	ErrorCodeKeyNotFound       = 4001
	ErrorCodeRateLimitExceeded = 4291

	// 5000-5999: 處理相關錯誤 (500 Internal Server Error).
	ErrorCodeProcessingFailed = 5001
	ErrorCodeStorageFailure   = 5002
)
