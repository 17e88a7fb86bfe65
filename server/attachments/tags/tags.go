// Package tags provides the in-process rendering helpers a server-rendered
// page uses around attachments: the ordered list and count for one owner
// record, and form/link markup that collapses to nothing when the principal
// is not allowed to see it.
package tags

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"attach_server/server/attachments/domain"
	"attach_server/server/attachments/permission"
	"attach_server/server/attachments/registry"
)

type Lister interface {
	List(ctx context.Context, model *registry.Model, ownerID string) ([]domain.Attachment, error)
	Count(ctx context.Context, model *registry.Model, ownerID string) (int64, error)
}

var uploadFormTemplate = template.Must(template.New("upload_form").Parse(strings.TrimSpace(`
<form class="attachment-upload" action="{{.Action}}" method="post" enctype="multipart/form-data">
<input type="file" name="file" required>
<button type="submit">Upload</button>
</form>
`)))

var deleteLinkTemplate = template.Must(template.New("delete_link").Parse(strings.TrimSpace(`
<a class="attachment-delete" href="{{.Action}}" data-method="delete">Delete {{.Filename}}</a>
`)))

// ForOwner returns the owner record's attachments, newest first.
func ForOwner(ctx context.Context, lister Lister, model *registry.Model, ownerID string) ([]domain.Attachment, error) {
	return lister.List(ctx, model, ownerID)
}

// CountFor returns the number of attachments on the owner record.
func CountFor(ctx context.Context, lister Lister, model *registry.Model, ownerID string) (int64, error) {
	return lister.Count(ctx, model, ownerID)
}

// UploadFormHTML renders the upload form for an owner record, or nothing when
// the principal is unauthenticated or may not add attachments.
func UploadFormHTML(model *registry.Model, p domain.Principal, ownerID string) template.HTML {
	if !p.Authenticated() {
		return ""
	}
	owner := domain.OwnerRef{Type: model.OwnerType, ID: ownerID}
	if !model.Policy.CanAdd(p, owner) {
		return ""
	}
	var b strings.Builder
	err := uploadFormTemplate.Execute(&b, map[string]string{
		"Action": fmt.Sprintf("/api/v1/attachments/%s/%s", model.OwnerType, ownerID),
	})
	if err != nil {
		return ""
	}
	return template.HTML(b.String())
}

// DeleteLinkHTML renders a delete link for one attachment, or nothing when
// the principal may not delete it.
func DeleteLinkHTML(model *registry.Model, p domain.Principal, att domain.Attachment) template.HTML {
	if !p.Authenticated() {
		return ""
	}
	owner := domain.OwnerRef{Type: model.OwnerType, ID: att.OwnerID}
	if !permission.AllowsDelete(model.Policy, p, owner, att) {
		return ""
	}
	var b strings.Builder
	err := deleteLinkTemplate.Execute(&b, map[string]string{
		"Action":   fmt.Sprintf("/api/v1/attachments/%s/%s/files/%s", model.OwnerType, att.OwnerID, att.ID),
		"Filename": att.Filename,
	})
	if err != nil {
		return ""
	}
	return template.HTML(b.String())
}
