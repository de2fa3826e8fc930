package sms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const defaultAPIBase = "https://api.twilio.com"

// TwilioTransport delivers through the provider SDK, falling back to a
// direct Basic-auth POST against the REST endpoint when the SDK client
// could not be constructed. Both paths send the same message and share the
// same error contract.
type TwilioTransport struct {
	accountSID string
	authToken  string
	from       string
	timeout    time.Duration
	logger     *logrus.Logger

	sdk *twilio.RestClient // nil means the fallback path is in effect

	httpClient *http.Client
	apiBase    string
}

type Option func(*TwilioTransport)

// WithAPIBase overrides the REST endpoint of the fallback path.
func WithAPIBase(base string) Option {
	return func(t *TwilioTransport) { t.apiBase = strings.TrimRight(base, "/") }
}

// WithoutSDK forces the fallback path, as in runtimes where the SDK cannot
// be initialized.
func WithoutSDK() Option {
	return func(t *TwilioTransport) { t.sdk = nil }
}

func NewTwilioTransport(accountSID, authToken, from string, timeout time.Duration, logger *logrus.Logger, opts ...Option) *TwilioTransport {
	t := &TwilioTransport{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		timeout:    timeout,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		apiBase:    defaultAPIBase,
	}

	if accountSID != "" && authToken != "" {
		base := &client.Client{
			Credentials: client.NewCredentials(accountSID, authToken),
		}
		base.SetTimeout(timeout)
		t.sdk = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
			Client:   base,
		})
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *TwilioTransport) Send(ctx context.Context, to, body string) error {
	if t.accountSID == "" || t.authToken == "" || t.from == "" {
		return ErrUnconfigured
	}

	if t.sdk != nil {
		return t.sendSDK(to, body)
	}
	return t.sendHTTP(ctx, to, body)
}

func (t *TwilioTransport) sendSDK(to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	msg, err := t.sdk.Api.CreateMessage(params)
	if err != nil {
		var restErr *client.TwilioRestError
		if errors.As(err, &restErr) {
			t.logger.WithFields(logrus.Fields{
				"status": restErr.Status,
				"code":   restErr.Code,
			}).Error("Provider rejected SMS")
			return &DeliveryError{StatusCode: restErr.Status, Body: restErr.Message, cause: err}
		}
		return &DeliveryError{cause: err}
	}

	if msg.Status != nil && *msg.Status == "failed" {
		return &DeliveryError{Body: "message status failed", cause: ErrDelivery}
	}

	return nil
}

// sendHTTP posts the message form directly to the provider REST API with
// HTTP Basic auth.
func (t *TwilioTransport) sendHTTP(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.apiBase, t.accountSID)

	form := url.Values{
		"To":   {to},
		"From": {t.from},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &DeliveryError{cause: err}
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
		}).Error("Provider rejected SMS on fallback path")
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return nil
}
