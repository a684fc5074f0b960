// Package offerbook holds arbitrator bids against cases awaiting assignment.
// Offers are made and withdrawn here; acceptance and the rejection of rival
// offers belong to the case lifecycle.
package offerbook

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusDismissed Status = "dismissed"
)

// Offer mirrors one offers row. HourlyRate is in the reference currency at
// four decimal places.
type Offer struct {
	ID             int64
	CaseID         int64
	Arbitrator     string
	HourlyRate     int64
	EstimatedHours int16
	Status         Status
	CreatedAt      time.Time
}

// Cost is the escrow the claimant must put up to accept the offer.
func (o Offer) Cost() int64 {
	return o.HourlyRate * int64(o.EstimatedHours)
}
