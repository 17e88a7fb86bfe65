package domain

import "time"

// Attachment is one uploaded file bound to exactly one owner record.
// CreatorID and CreatedAt are set on insert and never change; an update
// replaces only the stored file and its metadata.
type Attachment struct {
	ID           string    `json:"id"`
	OwnerType    string    `json:"owner_type"`
	OwnerID      string    `json:"owner_id"`
	ObjectKey    string    `json:"object_key"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	ThumbnailKey string    `json:"thumbnail_key"`
	CreatorID    string    `json:"creator_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// OwnerRef identifies the application record an attachment belongs to.
type OwnerRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Principal is the authenticated actor making a request. A zero Principal
// is anonymous.
type Principal struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Perms    []string `json:"perms"`
}

func (p Principal) Authenticated() bool {
	return p.ID != ""
}

func (p Principal) HasPerm(perm string) bool {
	for _, granted := range p.Perms {
		if granted == perm {
			return true
		}
	}
	return false
}
