package confirmation

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/infest-events/registration/internal/models"
)

const confirmationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Thank you for registering for {{.EventName}}!</h2>
  <p>Hi {{.Name}},</p>
  <p>Your registration is confirmed.</p>
  <table cellpadding="4">
    <tr><td>Ticket ID</td><td><b>{{.TicketID}}</b></td></tr>
    {{- if .College}}
    <tr><td>College</td><td>{{.College}}</td></tr>
    {{- end}}
    <tr><td>Events</td><td>{{.Events}}</td></tr>
    {{- if .PaymentID}}
    <tr><td>Payment reference</td><td>{{.PaymentID}}</td></tr>
    {{- end}}
  </table>
  <p>Show this QR code at the event check-in.</p>
  <img src="cid:{{.QRName}}" alt="Ticket QR code" width="220" height="220">
</body>
</html>
`

var confirmationTmpl = template.Must(template.New("confirmation").Parse(confirmationHTML))

type confirmationView struct {
	EventName string
	Name      string
	TicketID  string
	College   string
	Events    string
	PaymentID string
	QRName    string
}

// QRFileName is the inline attachment name referenced by the email body.
func QRFileName(ticketID string) string {
	return ticketID + ".png"
}

// Subject is the confirmation email subject line.
func Subject(eventName string) string {
	return fmt.Sprintf("%s - Registration Confirmation", eventName)
}

func renderBody(eventName string, reg *models.Registration) (string, error) {
	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, confirmationView{
		EventName: eventName,
		Name:      reg.Name,
		TicketID:  reg.TicketID,
		College:   reg.College,
		Events:    strings.Join(reg.Events, ", "),
		PaymentID: reg.PaymentID,
		QRName:    QRFileName(reg.TicketID),
	})
	if err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return buf.String(), nil
}
