package models

// ContactRequest is the body of POST /v1/contacts.
type ContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Contact is a trusted contact.
type Contact struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	AddedAt Timestamp `json:"addedAt"`
}

// ContactList lists trusted contacts in insertion order.
type ContactList struct {
	Contacts []Contact `json:"contacts"`
}

// EmergencyNumber is a public helpline.
type EmergencyNumber struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// EmergencyNumbers lists the configured helplines.
type EmergencyNumbers struct {
	Numbers []EmergencyNumber `json:"numbers"`
}
