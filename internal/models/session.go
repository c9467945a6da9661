package models

// AdminCenter is the sentinel center name that grants access to all centers.
const AdminCenter = "admin"

// Session is the logged-in user's identity and authorized centers.
type Session struct {
	Username string   `json:"username"`
	Centers  []string `json:"centers"`
}

func (s *Session) IsAdmin() bool {
	if s == nil {
		return false
	}
	for _, c := range s.Centers {
		if c == AdminCenter {
			return true
		}
	}
	return false
}

// HasCenter reports whether the session may see data of the given center.
func (s *Session) HasCenter(center string) bool {
	if s == nil {
		return false
	}
	if s.IsAdmin() {
		return true
	}
	for _, c := range s.Centers {
		if c == center {
			return true
		}
	}
	return false
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string   `json:"message"`
	Centers []string `json:"centers"`
}
