package retry

import (
	"time"

	"vauchi/go-core/pkg/models"
)

// Fanout materializes one delivery record per active device of the
// recipient. A contact with K devices yields K rows for the message.
func Fanout(messageID string, recipient models.Contact, devices []models.Device, now time.Time) []models.DeviceDeliveryRecord {
	if recipient.Blocked || recipient.Hidden {
		return nil
	}
	records := make([]models.DeviceDeliveryRecord, 0, len(devices))
	for _, d := range devices {
		if !d.Active {
			continue
		}
		records = append(records, models.DeviceDeliveryRecord{
			MessageID:   messageID,
			DeviceID:    d.DeviceID,
			RecipientID: recipient.ID,
			Status:      models.DeliveryQueued,
			UpdatedAt:   now.UTC().Unix(),
		})
	}
	return records
}

// Summarize folds per-device records into X-of-K progress.
func Summarize(records []models.DeviceDeliveryRecord) models.DeliverySummary {
	summary := models.DeliverySummary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case models.DeliveryDelivered:
			summary.Delivered++
		case models.DeliveryFailed, models.DeliveryExpired:
			summary.Failed++
		default:
			summary.Pending++
		}
	}
	return summary
}
