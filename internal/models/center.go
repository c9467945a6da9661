package models

import (
	"bytes"
	"encoding/json"
)

// Center is a clinic location. GET /centers returns either {id, name}
// objects or bare names; both decode into Center.
type Center struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c *Center) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Center{Name: name}
		return nil
	}
	type plain Center
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Center(p)
	return nil
}

// CenterDetails is the address block used to prefill a clinic booking.
type CenterDetails struct {
	DoorNo  string `json:"door_no"`
	Address string `json:"address"`
	PinCode string `json:"pin_code"`
}
