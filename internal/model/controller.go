package model

// Controller is one physical pool-control unit within an account.
// The CID looks numeric on the portal but is treated as an opaque string.
type Controller struct {
	CID  string `json:"cid"`
	Name string `json:"name"`
}
