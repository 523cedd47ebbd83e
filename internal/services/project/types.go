package project

// CreateProjectInput is the data needed to open a new project
type CreateProjectInput struct {
	Title         string  `json:"title" validate:"required,max=200"`
	Description   string  `json:"description" validate:"max=2000"`
	UserID        uint    `json:"user_id" validate:"required"`
	Northing      float64 `json:"northing" validate:"required"`
	Easting       float64 `json:"easting" validate:"required"`
	CatchmentArea float64 `json:"catchment_area" validate:"gte=0"`
	ChannelLength float64 `json:"channel_length" validate:"gte=0"`
	DeltaH        float64 `json:"delta_h"`
}

// UpdateProjectInput holds metadata edits. Nil fields are left unchanged.
type UpdateProjectInput struct {
	Title         *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string  `json:"description" validate:"omitempty,max=2000"`
	Northing      *float64 `json:"northing"`
	Easting       *float64 `json:"easting"`
	CatchmentArea *float64 `json:"catchment_area" validate:"omitempty,gte=0"`
	ChannelLength *float64 `json:"channel_length" validate:"omitempty,gte=0"`
	DeltaH        *float64 `json:"delta_h"`
}

// IDFInput are the precipitation anchors of the IDF curve
type IDFInput struct {
	PLow1h   float64 `json:"P_low_1h" validate:"gte=0"`
	PHigh1h  float64 `json:"P_high_1h" validate:"gte=0"`
	PLow24h  float64 `json:"P_low_24h" validate:"gte=0"`
	PHigh24h float64 `json:"P_high_24h" validate:"gte=0"`
	RpLow    float64 `json:"rp_low" validate:"gte=0"`
	RpHigh   float64 `json:"rp_high" validate:"gte=0"`
}

// ProjectSummary is a list entry
type ProjectSummary struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Northing     float64 `json:"northing"`
	Easting      float64 `json:"easting"`
	LastModified string  `json:"lastModified"`
}
