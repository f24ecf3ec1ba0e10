package consent

import "github.com/consent-app/consent_api/internal/codec"

type payloadRequest struct {
	Message  string `json:"message" validate:"required,max=2000"`
	DateTime string `json:"dateTime" validate:"omitempty,max=64"`
	Emoji    string `json:"emoji" validate:"omitempty,max=32"`
	Type     string `json:"type" validate:"omitempty,max=64"`
}

type createRequest struct {
	PartnerEmail string         `json:"partner_email" validate:"required,email"`
	Payload      payloadRequest `json:"payload"`
}

func (r createRequest) payload() codec.Payload {
	return codec.Payload{
		Message:  r.Payload.Message,
		DateTime: r.Payload.DateTime,
		Emoji:    r.Payload.Emoji,
		Type:     r.Payload.Type,
	}
}
