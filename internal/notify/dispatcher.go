package notify

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
	"sync"
	"time"

	"support-chat-service/internal/observability"
	"support-chat-service/internal/telemetry"
)

const notificationSubject = "New message from MotivWealth"

var bodyTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <div style="background-color: #16a34a; color: white; padding: 20px; text-align: center;">
        <h1>MotivWealth</h1>
      </div>
      <div style="background-color: #f9f9f9; padding: 20px;">
        <p>Hello,</p>
        <p>You have received a new message from MotivWealth:</p>
        <div style="background-color: white; padding: 15px; border-left: 4px solid #16a34a;">
          <p>{{.Message}}</p>
        </div>
        <p>Log in to your MotivWealth account to reply.</p>
        <p>Best regards,<br>The MotivWealth Team</p>
      </div>
      <div style="text-align: center; color: #666; font-size: 12px; margin-top: 20px;">
        <p>MotivWealth - Your Trusted Investment Partner</p>
        <p>Mutual Fund Investments are subject to market risks. Read all scheme related documents carefully.</p>
      </div>
    </div>
  </body>
</html>`))

// Dispatcher delivers best-effort email notifications after an admin reply.
// The message is already durably stored before Notify runs, so delivery
// failures are logged and counted but never surfaced to the sender.
type Dispatcher struct {
	mailer  Mailer
	audit   *telemetry.AuditEmitter
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(mailer Mailer, audit *telemetry.AuditEmitter) *Dispatcher {
	return &Dispatcher{mailer: mailer, audit: audit, timeout: 15 * time.Second}
}

// Notify asynchronously emails the conversation owner about a new admin
// message. Fire-and-forget: the caller's send has already succeeded.
func (d *Dispatcher) Notify(conversationID string, messageContent string, recipient string) {
	if recipient == "" {
		log.Printf("notification skipped conversation=%s: no recipient email", conversationID)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.deliver(ctx, messageContent, recipient); err != nil {
			observability.IncNotificationFailure()
			log.Printf("notification failed conversation=%s: %v", conversationID, err)
			// The delivery ctx may already be expired; the audit publish
			// gets its own.
			d.audit.Emit(context.Background(), "error",
				fmt.Sprintf("notification failed conversation=%s: %v", conversationID, err),
				"", nil)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, messageContent string, recipient string) error {
	var html strings.Builder
	if err := bodyTemplate.Execute(&html, struct{ Message string }{Message: messageContent}); err != nil {
		return err
	}
	return d.mailer.Send(ctx, recipient, notificationSubject, html.String())
}

// Wait blocks until all in-flight notifications settle. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
