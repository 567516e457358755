package domain

// DeviceProfile holds the editor tuning derived from the runtime environment.
type DeviceProfile struct {
	Mobile             bool `json:"mobile"`
	MaxRasterDimension int  `json:"max_raster_dimension"`
}
