package sendgrid

import (
	"github.com/sendgrid/sendgrid-go/helpers/eventwebhook"
)

const (
	SignatureHeader = "X-Twilio-Email-Event-Webhook-Signature"
	TimestampHeader = "X-Twilio-Email-Event-Webhook-Timestamp"
)

// NewVerifier returns a check for signed event webhooks using the base64 public key
// shown in the SendGrid mail settings.
func NewVerifier(publicKeyBase64 string) (func(payload []byte, signature, timestamp string) bool, error) {
	pk, err := eventwebhook.ConvertPublicKeyBase64ToECDSA(publicKeyBase64)
	if err != nil {
		return nil, err
	}
	return func(payload []byte, signature, timestamp string) bool {
		ok, err := eventwebhook.VerifySignature(pk, payload, signature, timestamp)
		return err == nil && ok
	}, nil
}
