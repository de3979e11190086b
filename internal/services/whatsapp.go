package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite" // SQLite driver for whatsmeow store
)

const sendRetries = 3

type WhatsAppService struct {
	client *whatsmeow.Client
}

func NewWhatsAppService(storePath string) (*WhatsAppService, error) {
	log.Printf("[WA] initializing store at %s", storePath)

	container, err := sqlstore.New(context.Background(), "sqlite",
		fmt.Sprintf("file:%s?_pragma=busy_timeout=5000&_pragma=foreign_keys=on", storePath),
		waLog.Stdout("SQLStore", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		log.Printf("[WA] no existing device, creating new one: %v", err)
		deviceStore = container.NewDevice()
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	service := &WhatsAppService{client: client}

	client.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *waEvents.Connected:
			log.Println("[WA] connected")
		case *waEvents.Disconnected:
			log.Printf("[WA] disconnected: %v", v)
		case *waEvents.LoggedOut:
			log.Println("[WA] logged out")
		}
	})

	if client.Store.ID == nil {
		log.Println("[WA] no session, starting QR pairing")
		qr, _ := client.GetQRChannel(context.Background())
		if err = client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		for evt := range qr {
			if evt.Event == "code" {
				log.Println("[WA] scan this QR code in WhatsApp to pair:")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			} else {
				log.Printf("[WA] QR event: %s", evt.Event)
			}
		}
	} else {
		if err = client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect with existing session: %w", err)
		}
	}

	return service, nil
}

func (w *WhatsAppService) SendMessage(ctx context.Context, phone, message string) error {
	_, err := w.send(ctx, phone, message)
	return err
}

// SendMessageWithAutoRevoke sends a message and deletes it from the chat
// after the given duration. Used for magic links so a token does not stay
// readable in the conversation past its lifetime.
func (w *WhatsAppService) SendMessageWithAutoRevoke(ctx context.Context, phone, message string, after time.Duration) error {
	resp, err := w.send(ctx, phone, message)
	if err != nil {
		return err
	}

	to := waTypes.NewJID(normalizePhone(phone), waTypes.DefaultUserServer)
	go func(messageID string, jid waTypes.JID) {
		select {
		case <-time.After(after):
			revoke := w.client.BuildRevoke(jid, w.client.Store.ID.ToNonAD(), messageID)
			if _, err := w.client.SendMessage(context.Background(), jid, revoke); err != nil {
				log.Printf("[WA] failed to revoke message %s: %v", messageID, err)
			}
		case <-ctx.Done():
		}
	}(resp.ID, to)

	return nil
}

func (w *WhatsAppService) send(ctx context.Context, phone, message string) (whatsmeow.SendResponse, error) {
	var resp whatsmeow.SendResponse
	if !w.client.IsConnected() {
		return resp, fmt.Errorf("WhatsApp client is not connected")
	}

	to := waTypes.NewJID(normalizePhone(phone), waTypes.DefaultUserServer)
	msg := &waProto.Message{Conversation: &message}

	var err error
	for i := 0; i < sendRetries; i++ {
		resp, err = w.client.SendMessage(ctx, to, msg)
		if err == nil {
			break
		}

		// Signal session setup can lag right after pairing; retry only
		// those failures.
		if strings.Contains(err.Error(), "can't encrypt message") ||
			strings.Contains(err.Error(), "no signal session established") {
			log.Printf("[WA] encryption error (attempt %d/%d): %v", i+1, sendRetries, err)
			if i < sendRetries-1 {
				time.Sleep(time.Duration(i+1) * 2 * time.Second)
				continue
			}
		}
		break
	}

	if err != nil {
		return resp, fmt.Errorf("failed to send message after %d attempts: %w", sendRetries, err)
	}

	log.Printf("[WA] sent message %s to %s", resp.ID, phone)
	return resp, nil
}

func (w *WhatsAppService) IsConnected() bool {
	return w.client.IsConnected()
}

func (w *WhatsAppService) AddEventHandler(handler func(interface{})) {
	w.client.AddEventHandler(handler)
}

func (w *WhatsAppService) Disconnect() {
	w.client.Disconnect()
}

// ExtractText pulls the text body out of a message event.
func ExtractText(e *waEvents.Message) string {
	if e.Message.GetConversation() != "" {
		return e.Message.GetConversation()
	}
	if e.Message.ExtendedTextMessage != nil {
		return e.Message.ExtendedTextMessage.GetText()
	}
	return ""
}

// stripDevicePart drops the device suffix from a JID user part ("123:4" ->
// "123").
func stripDevicePart(user string) string {
	if i := strings.Index(user, ":"); i != -1 {
		return user[:i]
	}
	return user
}

// normalizePhone reduces any of the phone formats seen on the wire (JID,
// device-suffixed, formatted) to bare digits.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if i := strings.Index(phone, "@"); i != -1 {
		phone = phone[:i]
	}
	phone = stripDevicePart(phone)

	var sb strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
