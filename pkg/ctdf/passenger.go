package ctdf

import (
	"time"
)

var PassengerIDFormat = "RIDERSHIP:PASSENGER:%s"

type PassengerStatus string

const (
	PassengerStatusWaiting PassengerStatus = "WAITING"
	PassengerStatusClaimed PassengerStatus = "CLAIMED"
	PassengerStatusBoarded PassengerStatus = "BOARDED"
	PassengerStatusExpired PassengerStatus = "EXPIRED"
)

type PassengerDirection string

const (
	PassengerDirectionInbound  PassengerDirection = "inbound"
	PassengerDirectionOutbound PassengerDirection = "outbound"
	PassengerDirectionNone     PassengerDirection = "none"
)

type PassengerEntityType string

const (
	PassengerEntityRoute PassengerEntityType = "route"
	PassengerEntityDepot PassengerEntityType = "depot"
)

// PassengerRecord is a single unit of demand waiting in a reservoir
type PassengerRecord struct {
	PrimaryIdentifier string `groups:"basic" bson:"primaryidentifier" json:"id"`

	EntityType PassengerEntityType `groups:"basic" bson:"entitytype" json:"entity_type"`
	EntityRef  string              `groups:"basic" bson:"entityref" json:"entity_id"`

	// Set for depot passengers, the route they intend to travel on
	RouteRef string `groups:"basic" bson:"routeref,omitempty" json:"route_id,omitempty"`

	Origin      Location `groups:"basic" bson:"origin" json:"origin"`
	Destination Location `groups:"basic" bson:"destination" json:"destination"`

	// Route passengers only, indexes into the route coordinate sequence
	BoardIndex  int `groups:"detailed" bson:"boardindex" json:"board_index"`
	AlightIndex int `groups:"detailed" bson:"alightindex" json:"alight_index"`

	// Meters along the route the origin projects to
	ArcPosition float64 `groups:"detailed" bson:"arcposition" json:"arc_position"`

	SpawnTime time.Time `groups:"basic" bson:"spawntime" json:"spawn_time"`
	ExpiresAt time.Time `groups:"basic" bson:"expiresat" json:"expires_at"`

	Direction PassengerDirection `groups:"basic" bson:"direction" json:"direction"`
	Status    PassengerStatus    `groups:"basic" bson:"status" json:"status"`

	ClaimedBy string     `groups:"detailed" bson:"claimedby,omitempty" json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `groups:"detailed" bson:"claimedat,omitempty" json:"claimed_at,omitempty"`
	BoardedAt *time.Time `groups:"detailed" bson:"boardedat,omitempty" json:"boarded_at,omitempty"`
	ExpiredAt *time.Time `groups:"detailed" bson:"expiredat,omitempty" json:"expired_at,omitempty"`
}

// IsExpiredAt is true for WAITING passengers that have waited past their expiry
func (p *PassengerRecord) IsExpiredAt(now time.Time) bool {
	return p.Status == PassengerStatusWaiting && !now.Before(p.ExpiresAt)
}

// AllowedPassengerTransitions is the passenger status flow as code.
// BOARDED and EXPIRED are terminal.
var AllowedPassengerTransitions = map[PassengerStatus][]PassengerStatus{
	PassengerStatusWaiting: {PassengerStatusClaimed, PassengerStatusExpired},
	PassengerStatusClaimed: {PassengerStatusBoarded},
}

func CanTransition(from, to PassengerStatus) bool {
	next, ok := AllowedPassengerTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
