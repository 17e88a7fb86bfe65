package validate

import (
	"fmt"
	"mime"
	"mime/multipart"
	"strings"
)

// Check inspects an uploaded file header and returns an error to reject it.
type Check func(fh *multipart.FileHeader) error

// Error carries every rejection message from a validator run so the uploader
// sees all violations at once.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, "; ")
}

// RunAll runs every check in order and aggregates all failures. It never
// stops at the first failure; callers rely on the complete message list.
func RunAll(fh *multipart.FileHeader, checks []Check) error {
	var messages []string
	for _, check := range checks {
		if check == nil {
			continue
		}
		err := check(fh)
		if err == nil {
			continue
		}
		if verr, ok := err.(*Error); ok {
			messages = append(messages, verr.Messages...)
			continue
		}
		messages = append(messages, err.Error())
	}
	if len(messages) == 0 {
		return nil
	}
	return &Error{Messages: messages}
}

// MaxSize rejects uploads larger than the given number of megabytes.
// A non-positive limit disables the check.
func MaxSize(megabytes int) Check {
	limit := int64(megabytes) * 1024 * 1024
	return func(fh *multipart.FileHeader) error {
		if megabytes <= 0 {
			return nil
		}
		if fh.Size > limit {
			return fmt.Errorf("file exceeds the maximum size of %d MB", megabytes)
		}
		return nil
	}
}

// ContentTypeWhitelist rejects uploads whose declared content type is absent
// from a non-empty whitelist. An empty whitelist imposes no restriction.
// Parameters on the declared type ("text/plain; charset=utf-8") are ignored.
func ContentTypeWhitelist(types ...string) Check {
	allowed := map[string]struct{}{}
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			allowed[t] = struct{}{}
		}
	}
	return func(fh *multipart.FileHeader) error {
		if len(allowed) == 0 {
			return nil
		}
		declared := DeclaredContentType(fh)
		if _, ok := allowed[declared]; !ok {
			return fmt.Errorf("content type %q is not allowed", declared)
		}
		return nil
	}
}

// DeclaredContentType normalizes the upload's declared media type. An absent
// header means application/octet-stream; parameters are stripped. The stored
// content type must come through here too so it always matches what the
// whitelist judged.
func DeclaredContentType(fh *multipart.FileHeader) string {
	raw := fh.Header.Get("Content-Type")
	if raw == "" {
		return "application/octet-stream"
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return parsed
}
