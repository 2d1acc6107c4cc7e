package model

type EmailSubscriber struct {
	ID      string    `json:"id"`
	Email   string    `json:"email"`
	AddedAt Timestamp `json:"added_at"`
	Active  bool      `json:"active"`
}

func (s *EmailSubscriber) Validate() error {
	if s.Email == "" {
		return &ValidationError{Field: "email", Reason: "missing"}
	}
	return nil
}

type EmailConfigStatus struct {
	Configured        bool   `json:"configured"`
	GmailUser         string `json:"gmail_user"`
	TemplateAvailable bool   `json:"template_available"`
}

func (s *EmailConfigStatus) Validate() error { return nil }
