// internal/domain/notification/notification.go
package notification

import (
	"context"
	"fmt"
)

// Priority of a posted notification.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
)

// ErrPermissionDenied is returned by a Presenter when the user has revoked
// the capability to receive notifications on that channel.
var ErrPermissionDenied = fmt.Errorf("notification permission denied")

// Notification is everything the core hands to the presentation collaborator.
// Rendering is the presenter's concern.
type Notification struct {
	Identity   string
	Title      string
	Body       string
	TapTarget  string // brings the host application to the foreground
	Priority   Priority
	AutoCancel bool
	Tag        string // same tag replaces an earlier notification
}

// Presenter posts notifications to the user.
type Presenter interface {
	Present(ctx context.Context, n Notification) error
}

// PermissionRepository persists whether an identity accepts notifications.
// An identity that never set the flag is allowed.
type PermissionRepository interface {
	NotificationsAllowed(ctx context.Context, identity string) (bool, error)
	SetNotificationsAllowed(ctx context.Context, identity string, allowed bool) error
}
