package sendgrid

import (
	"context"
	"strings"

	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mailcast/internal/providers"
)

const (
	Name = "sendgrid"

	DefaultBaseURL  = "https://api.sendgrid.com"
	DefaultSendPath = "/v3/mail/send"

	// CampaignArg is echoed back in every event webhook payload for this message.
	CampaignArg = "campaign_id"
)

type Client struct {
	APIKey   string
	BaseURL  string
	SendPath string
}

func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{APIKey: apiKey, BaseURL: baseURL, SendPath: DefaultSendPath}
}

// BuildMail maps the generic request onto a v3 mail body with click and open tracking on.
func BuildMail(req providers.Request) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(req.FromName, req.From))
	m.Subject = req.Subject
	if req.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", req.ReplyTo))
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", req.To))
	if req.CampaignID != "" {
		p.SetCustomArg(CampaignArg, req.CampaignID)
		m.SetHeader("X-Campaign-ID", req.CampaignID)
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", req.HTML))

	enable := true
	m.SetTrackingSettings(&mail.TrackingSettings{
		ClickTracking: &mail.ClickTrackingSetting{Enable: &enable, EnableText: &enable},
		OpenTracking:  &mail.OpenTrackingSetting{Enable: &enable},
	})
	return m
}

func (c *Client) Send(ctx context.Context, req providers.Request) (providers.Result, error) {
	request := sendgrid.GetRequest(c.APIKey, c.SendPath, c.BaseURL)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(BuildMail(req))

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return providers.Result{Provider: Name}, err
	}

	// 202 Accepted on success; treat any 2xx as success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providers.Result{Provider: Name, HTTPStatus: resp.StatusCode}, &providers.Error{
			Provider:   Name,
			HTTPStatus: resp.StatusCode,
			Body:       resp.Body,
		}
	}
	return providers.Result{
		Provider:   Name,
		MessageID:  firstHeader(resp.Headers, "X-Message-Id"),
		HTTPStatus: resp.StatusCode,
	}, nil
}

func firstHeader(h map[string][]string, key string) string {
	for k, v := range h {
		if len(v) > 0 && strings.EqualFold(k, key) {
			return v[0]
		}
	}
	return ""
}
