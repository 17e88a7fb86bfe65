package permission

import "attach_server/server/attachments/domain"

// Permission strings granted to principals. A grant is the string itself;
// there is no hierarchy between them except that EditAnyAttachment bypasses
// the creator-ownership requirement on change and delete.
const (
	ViewAttachment    = "attachments.view_attachment"
	AddAttachment     = "attachments.add_attachment"
	ChangeAttachment  = "attachments.change_attachment"
	DeleteAttachment  = "attachments.delete_attachment"
	EditAnyAttachment = "attachments.edit_any_attachment"
)

// Policy decides what a principal may do with attachments of one owner
// record. Unauthorized is a plain false, never an error; handlers translate
// false into a 403. Custom policies are expected to wrap Default and call
// through, adding rules rather than replacing the baseline checks.
type Policy interface {
	CanView(p domain.Principal, owner domain.OwnerRef) bool
	CanAdd(p domain.Principal, owner domain.OwnerRef) bool
	CanChange(p domain.Principal, owner domain.OwnerRef) bool
	CanDeleteOwn(p domain.Principal, owner domain.OwnerRef) bool
	CanEditAny(p domain.Principal, owner domain.OwnerRef) bool
}

// Default checks the permission strings carried by the principal.
type Default struct{}

func (Default) CanView(p domain.Principal, _ domain.OwnerRef) bool {
	return p.HasPerm(ViewAttachment)
}

func (Default) CanAdd(p domain.Principal, _ domain.OwnerRef) bool {
	return p.HasPerm(AddAttachment)
}

func (Default) CanChange(p domain.Principal, _ domain.OwnerRef) bool {
	return p.HasPerm(ChangeAttachment)
}

func (Default) CanDeleteOwn(p domain.Principal, _ domain.OwnerRef) bool {
	return p.HasPerm(DeleteAttachment)
}

func (Default) CanEditAny(p domain.Principal, _ domain.OwnerRef) bool {
	return p.HasPerm(EditAnyAttachment)
}

// AllowsChange is the full rule for replacing an attachment's file: change
// permission on the principal's own attachments, or the edit-any override
// for anyone's.
func AllowsChange(policy Policy, p domain.Principal, owner domain.OwnerRef, att domain.Attachment) bool {
	if att.CreatorID == p.ID && policy.CanChange(p, owner) {
		return true
	}
	return policy.CanEditAny(p, owner)
}

// AllowsDelete mirrors AllowsChange for deletion.
func AllowsDelete(policy Policy, p domain.Principal, owner domain.OwnerRef, att domain.Attachment) bool {
	if att.CreatorID == p.ID && policy.CanDeleteOwn(p, owner) {
		return true
	}
	return policy.CanEditAny(p, owner)
}
