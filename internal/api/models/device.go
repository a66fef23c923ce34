package models

// Device is a tracked GPS device.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	Block     *string   `json:"block,omitempty"`
	LastFix   *Fix      `json:"lastFix,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Fix is a recorded position.
type Fix struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Accuracy   *float64  `json:"accuracyM,omitempty"`
	Altitude   *float64  `json:"altitudeM,omitempty"`
	Block      *string   `json:"block,omitempty"`
	RecordedAt Timestamp `json:"recordedAt"`
}

// DeviceRegisterRequest is the request body for POST /v1/devices.
type DeviceRegisterRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=FOREGROUND BACKGROUND"`
}

// DeviceRegisterResponse carries the new device and its access token.
type DeviceRegisterResponse struct {
	Device Device        `json:"device"`
	Token  TokenResponse `json:"token"`
}

// DeviceModeRequest is the request body for PUT /v1/devices/{deviceId}/mode.
type DeviceModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=FOREGROUND BACKGROUND"`
}

// FixRequest is the request body for POST /v1/devices/{deviceId}/fixes.
type FixRequest struct {
	Lat        *float64   `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon        *float64   `json:"lon" validate:"required,gte=-180,lte=180"`
	Accuracy   *float64   `json:"accuracyM,omitempty" validate:"omitempty,gte=0"`
	Altitude   *float64   `json:"altitudeM,omitempty"`
	RecordedAt *Timestamp `json:"recordedAt,omitempty"`
}

// FixResponse is the locator's answer to a recorded fix.
type FixResponse struct {
	Report    LocateResponse `json:"report"`
	Changed   bool           `json:"changed"`
	From      *string        `json:"from,omitempty"`
	To        *string        `json:"to,omitempty"`
	Published bool           `json:"published"`
	Late      bool           `json:"late,omitempty"`
}

// Track is a device's recent path.
type Track struct {
	DeviceID string     `json:"deviceId"`
	Points   int        `json:"points"`
	Polyline string     `json:"polyline"`
	Length   float64    `json:"lengthM"`
	From     *Timestamp `json:"from,omitempty"`
	To       *Timestamp `json:"to,omitempty"`
	Blocks   []string   `json:"blocks"`
}

// PagedDevices represents a paginated list of devices.
type PagedDevices struct {
	Items []Device          `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
