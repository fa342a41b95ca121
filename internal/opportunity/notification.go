package opportunity

// NotificationKind selects the template and audience of a notification.
type NotificationKind string

// Notification kinds.
const (
	NotifyNewInstitution   NotificationKind = "new_institution"
	NotifyNewBursary       NotificationKind = "new_bursary"
	NotifyDeadlineReminder NotificationKind = "deadline_reminder"
	NotifyWeeklyDigest     NotificationKind = "weekly_digest"
)

// Subscriber is a recipient resolved by an external collaborator.
type Subscriber struct {
	Address     string             `mapstructure:"address" json:"address" validate:"required,email"`
	DisplayName string             `mapstructure:"display_name" json:"display_name"`
	Preferences []NotificationKind `mapstructure:"preferences" json:"preferences"`
}

// Wants reports whether the subscriber opted into kind. An empty preference
// list means every kind.
func (s Subscriber) Wants(kind NotificationKind) bool {
	if len(s.Preferences) == 0 {
		return true
	}
	for _, p := range s.Preferences {
		if p == kind {
			return true
		}
	}
	return false
}

// NotificationEvent is one logical event dispatched to many recipients.
type NotificationEvent struct {
	Kind       NotificationKind
	Payload    []Entity
	Upcoming   []Entity
	Recipients []Subscriber
}
