package notifications

import "github.com/domage/github-trend-analyzer/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendDigest(digest *models.Digest) error
}
