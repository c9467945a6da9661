package models

import "encoding/json"

// UserState is the persisted dialog step of a bot user.
type UserState struct {
	UserID      int64
	CurrentStep string
	TempData    map[string]interface{}
}

func (s *UserState) GetString(key string) string {
	if s.TempData == nil {
		return ""
	}
	val, ok := s.TempData[key]
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func (s *UserState) GetInt64(key string) int64 {
	if s.TempData == nil {
		return 0
	}
	val, ok := s.TempData[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Draft decodes the booking draft stored under "draft". Drafts are kept as
// JSON strings so they survive the Redis round trip unchanged.
func (s *UserState) Draft() (*BookingDraft, bool) {
	raw := s.GetString("draft")
	if raw == "" {
		return nil, false
	}
	var d BookingDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, false
	}
	return &d, true
}

// SetDraft stores d under "draft".
func (s *UserState) SetDraft(d *BookingDraft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if s.TempData == nil {
		s.TempData = make(map[string]interface{})
	}
	s.TempData["draft"] = string(raw)
	return nil
}
