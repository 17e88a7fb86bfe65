package httpresp

const (
	ErrUnauthorized       = "unauthorized"
	ErrInvalidCredentials = "invalid credentials"
	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrForbidden          = "forbidden"
	ErrUnknownOwnerType   = "unknown owner type"
	ErrOwnerNotFound      = "owner not found"
	ErrAttachmentNotFound = "attachment not found"
	ErrFileRequired       = "file is required"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type IDResponse struct {
	ID string `json:"id"`
}

type URLResponse struct {
	URL string `json:"url"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Perms       []string `json:"perms"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewValidationErrorResponse(messages []string) ValidationErrorResponse {
	return ValidationErrorResponse{Error: "validation failed", Messages: messages}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewIDResponse(id string) IDResponse {
	return IDResponse{ID: id}
}

func NewURLResponse(url string) URLResponse {
	return URLResponse{URL: url}
}

func NewCountResponse(count int64) CountResponse {
	return CountResponse{Count: count}
}

func NewTokenResponse(accessToken, userID, username string, perms []string) TokenResponse {
	return TokenResponse{AccessToken: accessToken, UserID: userID, Username: username, Perms: perms}
}
