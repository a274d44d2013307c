package models

import "time"

type Coord struct {
    Lat float64 `json:"lat"`
    Lon float64 `json:"lon"`
}

// GeoSignal is a single "I need a ride" ping. Read-only once created;
// expired signals are filtered out, never edited.
type GeoSignal struct {
    ID          string    `json:"id"`
    Origin      Coord     `json:"origin"`
    PeopleCount int       `json:"people_count"`
    CreatedAt   time.Time `json:"created_at"`
    ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the signal is invalid at the given instant.
func (s GeoSignal) Expired(now time.Time) bool {
    return !now.Before(s.ExpiresAt)
}

// SignalCluster is a derived hotspot. Recomputed wholesale on every pass;
// carries no identity across recomputes beyond RepresentativeID.
type SignalCluster struct {
    RepresentativeID string      `json:"representative_id"`
    Centroid         Coord       `json:"centroid"`
    TotalPeople      int         `json:"total_people"`
    MemberCount      int         `json:"member_count"`
    Members          []GeoSignal `json:"members"`
}

type HoldStatus string

const (
    HoldActive    HoldStatus = "active"
    HoldReleased  HoldStatus = "released"
    HoldForfeited HoldStatus = "forfeited"
)

// WalletHold is a provisional lock against a user's available balance.
// Amount is an opaque positive number in the source currency.
type WalletHold struct {
    ID           string     `json:"id"`
    UserID       string     `json:"user_id"`
    Amount       float64    `json:"amount"`
    Reason       string     `json:"reason"`
    LinkedTripID string     `json:"linked_trip_id,omitempty"`
    Status       HoldStatus `json:"status"`
    CreatedAt    time.Time  `json:"created_at"`
}

// LedgerEntry is the audit row paired with every balance mutation.
type LedgerEntry struct {
    ID        string    `json:"id"`
    HoldID    string    `json:"hold_id"`
    UserID    string    `json:"user_id"`
    Amount    float64   `json:"amount"`
    Direction string    `json:"direction"` // debit, credit, fee
    Reason    string    `json:"reason"`
    CreatedAt time.Time `json:"created_at"`
}

// PenaltyDistribution records how a forfeited hold's penalty was split.
type PenaltyDistribution struct {
    HoldID         string  `json:"hold_id"`
    TotalPenalty   float64 `json:"total_penalty"`
    DriverShare    float64 `json:"driver_share"`
    PlatformShare  float64 `json:"platform_share"`
    UnlockedAmount float64 `json:"unlocked_amount"`
}

// PenaltyNotice is the structured payload handed to the notification
// collaborator; rendering is not this module's job.
type PenaltyNotice struct {
    PenaltyAmount     float64 `json:"penalty_amount"`
    SplitDescription  string  `json:"split_description"`
    CounterpartyShare float64 `json:"counterparty_share"`
    PlatformShare     float64 `json:"platform_share"`
}
