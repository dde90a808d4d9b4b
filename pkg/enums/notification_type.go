package enums

import "fmt"

// NotificationType maps to the notification_type column on the remote store.
type NotificationType string

const (
	NotificationTypePackageUpdate  NotificationType = "package_update"
	NotificationTypeShipmentUpdate NotificationType = "shipment_update"
	NotificationTypeSystem         NotificationType = "system"
	NotificationTypePromotion      NotificationType = "promotion"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePackageUpdate,
	NotificationTypeShipmentUpdate,
	NotificationTypeSystem,
	NotificationTypePromotion,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
