package client

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/ui"
	"github.com/huanfeng/corehub/pkg/utils"
)

// Choices offered when a document cannot be fetched.
var retryChoices = []string{"Retry fetching", "Cancel"}

// Fetcher fetches JSON documents, validates them and asks the user what to
// do when that fails.
type Fetcher struct {
	transport Transport
	prompter  ui.Prompter
}

// NewFetcher creates a Fetcher. A nil prompter behaves like ui.Silent.
func NewFetcher(transport Transport, prompter ui.Prompter) *Fetcher {
	if prompter == nil {
		prompter = ui.Silent{}
	}
	return &Fetcher{transport: transport, prompter: prompter}
}

func (f *Fetcher) Transport() Transport { return f.transport }

func (f *Fetcher) Prompter() ui.Prompter { return f.prompter }

type fetchOptions struct {
	allowRetry  bool
	title       string
	message     string
	preValidate func(raw json.RawMessage) error
}

// FetchOption configures a single FetchAndValidate call.
type FetchOption func(*fetchOptions)

// WithoutRetry returns the first failure instead of prompting.
func WithoutRetry() FetchOption {
	return func(o *fetchOptions) { o.allowRetry = false }
}

// WithStatus sets the status shown before each attempt.
func WithStatus(title, message string) FetchOption {
	return func(o *fetchOptions) {
		o.title = title
		o.message = message
	}
}

// WithPreValidate runs fn on the raw document before it is decoded.
func WithPreValidate(fn func(raw json.RawMessage) error) FetchOption {
	return func(o *fetchOptions) { o.preValidate = fn }
}

// FetchAndValidate fetches url, decodes it into T and validates it.
//
// Schema violations are returned as VALIDATION errors and transport
// failures as TRANSPORT errors. Unless WithoutRetry is given, either kind
// is presented to the user with a choice between retrying and cancelling.
func FetchAndValidate[T any](ctx context.Context, f *Fetcher, url string, opts ...FetchOption) (*T, error) {
	o := fetchOptions{
		allowRetry: true,
		title:      "Fetching...",
		message:    "URL: " + url,
	}
	for _, opt := range opts {
		opt(&o)
	}

	for {
		f.prompter.Show(o.title, o.message)

		doc, err := fetchOnce[T](ctx, f, url, o.preValidate)
		if err == nil {
			return doc, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		utils.Debug("fetching %s failed: %v", url, err)
		if !o.allowRetry {
			return nil, err
		}

		choice, ok := f.prompter.Alert("Error fetching JSON",
			fmt.Sprintf("URL: %s\n%v", url, err), retryChoices)
		if !ok || choice != 0 {
			return nil, err
		}
	}
}

func fetchOnce[T any](ctx context.Context, f *Fetcher, url string, preValidate func(json.RawMessage) error) (*T, error) {
	raw, err := f.transport.FetchJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	if preValidate != nil {
		if err := preValidate(raw); err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrorTypeValidation, "PRE_VALIDATE", "document rejected").
				WithContext("url", url)
		}
	}

	doc := new(T)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, apperrors.NewValidationError(url, []apperrors.FieldError{{
			Field:   "(root)",
			Message: err.Error(),
		}})
	}

	if fields := schema.Validate(doc); len(fields) > 0 {
		return nil, apperrors.NewValidationError(url, fields)
	}
	return doc, nil
}
