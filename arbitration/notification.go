package arbitration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"disputeflow/principal"
)

// Notification topics published for integrators.
const (
	TopicDisputeFiled    = "filed"
	TopicDisputeResolved = "resolved"
	TopicAppealFiled     = "appeal_filed"
	TopicAppealResolved  = "appeal_resolved"
)

// Notification is a record staged in the outbox alongside the state change
// that produced it. PartitionKey groups notifications of the same dispute.
type Notification struct {
	ID           string
	Topic        string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// DisputeFiledNotification carries the new dispute id and the claimant.
func DisputeFiledNotification(disputeID uint64, claimant principal.Principal, at time.Time) Notification {
	return newNotification(TopicDisputeFiled, disputeID, at, map[string]any{
		"dispute_id": disputeID,
		"claimant":   claimant.String(),
	})
}

// DisputeResolvedNotification carries the resolved dispute id.
func DisputeResolvedNotification(disputeID uint64, at time.Time) Notification {
	return newNotification(TopicDisputeResolved, disputeID, at, map[string]any{
		"dispute_id": disputeID,
	})
}

// AppealFiledNotification carries the appeal id, its dispute and the appellant.
func AppealFiledNotification(appealID, disputeID uint64, appellant principal.Principal, at time.Time) Notification {
	return newNotification(TopicAppealFiled, disputeID, at, map[string]any{
		"appeal_id":  appealID,
		"dispute_id": disputeID,
		"appellant":  appellant.String(),
	})
}

// AppealResolvedNotification carries the resolved appeal id. It is keyed by
// the parent dispute so it orders after the dispute's earlier notifications.
func AppealResolvedNotification(appealID, disputeID uint64, at time.Time) Notification {
	return newNotification(TopicAppealResolved, disputeID, at, map[string]any{
		"appeal_id": appealID,
	})
}

func newNotification(topic string, disputeID uint64, at time.Time, payload map[string]any) Notification {
	return Notification{
		ID:           uuid.NewString(),
		Topic:        topic,
		PartitionKey: strconv.FormatUint(disputeID, 10),
		Payload:      mustJSON(payload),
		CreatedAt:    at.UTC(),
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("arbitration: marshal notification payload: %v", err))
	}
	return b
}
