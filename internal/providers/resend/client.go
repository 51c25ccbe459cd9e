package resend

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"mailcast/internal/providers"
)

const (
	Name           = "resend"
	DefaultBaseURL = "https://api.resend.com"

	CampaignTag = "campaign_id"
)

type Client struct {
	http *resty.Client
}

func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json"),
	}
}

type tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type sendPayload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    []tag             `json:"tags,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Open and click tracking are enabled per sending domain on Resend, so the
// payload only carries the correlation tag and header.
func buildPayload(req providers.Request) sendPayload {
	from := req.From
	if req.FromName != "" {
		from = fmt.Sprintf("%s <%s>", req.FromName, req.From)
	}
	p := sendPayload{
		From:    from,
		To:      []string{req.To},
		Subject: req.Subject,
		HTML:    req.HTML,
		ReplyTo: req.ReplyTo,
	}
	if req.CampaignID != "" {
		p.Headers = map[string]string{"X-Campaign-ID": req.CampaignID}
		p.Tags = []tag{{Name: CampaignTag, Value: req.CampaignID}}
	}
	return p
}

func (c *Client) Send(ctx context.Context, req providers.Request) (providers.Result, error) {
	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(buildPayload(req)).
		SetResult(&out).
		Post("/emails")
	if err != nil {
		return providers.Result{Provider: Name}, err
	}
	if resp.IsError() {
		return providers.Result{Provider: Name, HTTPStatus: resp.StatusCode()}, &providers.Error{
			Provider:   Name,
			HTTPStatus: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}
	return providers.Result{Provider: Name, MessageID: out.ID, HTTPStatus: resp.StatusCode()}, nil
}
