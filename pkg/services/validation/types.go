package validation

// Wire payload types exchanged with the GP51 platform. Field names follow the
// webapi JSON contract (lowercase, no separators).

type Vehicle struct {
	DeviceID   string  `json:"deviceid" validate:"required"`
	DeviceName string  `json:"devicename" validate:"required"`
	DeviceType int     `json:"devicetype" validate:"gte=0"`
	Latitude   float64 `json:"callat" validate:"gte=-90,lte=90"`
	Longitude  float64 `json:"callon" validate:"gte=-180,lte=180"`
	Speed      float64 `json:"speed"`
	Course     int     `json:"course"`
	UpdateTime int64   `json:"updatetime"`
	SimNumber  string  `json:"simnum"`
	Remark     string  `json:"remark"`
}

type User struct {
	Username string `json:"username" validate:"required"`
	ShowName string `json:"showname"`
	UserType int    `json:"usertype" validate:"gte=0"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
}

type Position struct {
	DeviceID    string  `json:"deviceid" validate:"required"`
	Latitude    float64 `json:"callat"`
	Longitude   float64 `json:"callon"`
	Speed       float64 `json:"speed" validate:"gte=0"`
	Course      int     `json:"course"`
	Altitude    float64 `json:"altitude"`
	UpdateTime  int64   `json:"updatetime"`
	ArrivedTime int64   `json:"arrivedtime"`
	StatusFlags int64   `json:"status"`
	Alarm       int64   `json:"alarm"`
	Battery     int     `json:"battery"`
	Temperature float64 `json:"temp1"`
	TotalOil    float64 `json:"totaloil"`
	Moving      int     `json:"moving"`
}

type AuthResponse struct {
	Status int    `json:"status"`
	Token  string `json:"token"`
	Cause  string `json:"cause"`
}

type DeviceType struct {
	TypeID   int    `json:"devicetype" validate:"gte=0"`
	TypeName string `json:"typename" validate:"required"`
}

type DeviceGroup struct {
	GroupID   int       `json:"groupid"`
	GroupName string    `json:"groupname"`
	Remark    string    `json:"remark"`
	Devices   []Vehicle `json:"devices" validate:"dive"`
}

type DeviceListResponse struct {
	Status int           `json:"status"`
	Cause  string        `json:"cause"`
	Groups []DeviceGroup `json:"groups" validate:"dive"`
}
