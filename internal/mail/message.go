package mail

const (
	TemplateActivate = "activate"
	TemplateReset    = "reset"
	TemplateInvite   = "invite"
)

// Message is an outbound mail request as it travels through the outbox.
type Message struct {
	Template string            `json:"template"`
	To       []string          `json:"to"`
	Data     map[string]string `json:"data"`
}
