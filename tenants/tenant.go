package tenants

// OperatingHours is the daily delivery window of a space, "HH:MM" local time
type OperatingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SpaceInfo is the public information of a coworking space (the tenant).
// It is not tied to a member session and outlives logout.
type SpaceInfo struct {
	Name                 string          `json:"name"`
	Slug                 string          `json:"slug"`
	Address              string          `json:"address"`
	DeliveryInstructions *string         `json:"deliveryInstructions"`
	OperatingHours       *OperatingHours `json:"operatingHours"`
}
