package httputil

// 錯誤訊息常數.
const (
	InvalidParameter  = "Invalid request body."
	EmptyKey          = "Key cannot be empty."
	KeyTooLong        = "Key is too long."
	InvalidExpiration = "Expiration must be a positive duration, \"never\" or null."
	NotFound          = "Key not found, expired or already deleted."
)

// SaveKeyResponse 保存密鑰的回應.
type SaveKeyResponse struct {
	KeyID string `json:"keyId"`
}

// GetKeyResponse 取回密鑰的回應.
type GetKeyResponse struct {
	Key string `json:"key"`
}
