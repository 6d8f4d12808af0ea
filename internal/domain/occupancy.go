package domain

// Status is the availability signal of a zone
type Status string

const (
	StatusAvailable Status = "available"
	StatusFull      Status = "full"
)

// Occupancy is the state of one zone for one snapshot
type Occupancy struct {
	Zone           string `json:"zone"`
	Count          int    `json:"count"`
	Threshold      int    `json:"threshold"`
	Status         Status `json:"status"`
	AvailableSlots int    `json:"availableSlots"`
}

// HourSlot holds distinct-device presence per zone for one hour of the day
type HourSlot struct {
	Label   string         `json:"timeSlot"`
	Hour    int            `json:"hour"`
	Devices map[string]int `json:"devices"`
}
